// Package queue holds user-initiated mutations that could not reach the
// backend, in FIFO order, persisted across restarts.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/crypto"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/storage"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/uuid"
)

// DefaultStorageKey is the fixed key the snapshot is persisted under.
const DefaultStorageKey = "offline-queue"

// EnqueueRequest describes a mutation to buffer.
type EnqueueRequest struct {
	Endpoint string
	Method   models.Method
	Payload  json.RawMessage
}

// Options configures a Store.
type Options struct {
	StorageKey string
	// MaxSize bounds the number of entries; 0 means unbounded. When full,
	// the oldest synced or failed entry is evicted. Pending work is never
	// dropped.
	MaxSize int
	// Sealer, when set, encrypts the persisted snapshot.
	Sealer *crypto.Sealer
	Now    func() time.Time
}

// EventType names a store mutation.
type EventType string

const (
	EventEnqueued EventType = "queue.enqueued"
	EventUpdated  EventType = "queue.updated"
	EventRemoved  EventType = "queue.removed"
	EventCleared  EventType = "queue.cleared"
)

// Event is delivered to subscribers after every mutation.
type Event struct {
	Type    EventType
	Request models.QueuedRequest
	Stats   models.QueueStats
}

// Store exclusively owns the collection of queued requests.
type Store struct {
	mu          sync.RWMutex
	items       []*models.QueuedRequest
	index       map[string]*models.QueuedRequest
	lastCreated time.Time

	kv      storage.KV
	key     string
	sealer  *crypto.Sealer
	maxSize int
	now     func() time.Time

	persistMu sync.Mutex
	version   uint64
	written   uint64

	listenerMu   sync.RWMutex
	listeners    map[int]func(Event)
	nextListener int
}

// NewStore creates a Store persisting to kv. Call Init before use to load
// the previous snapshot.
func NewStore(kv storage.KV, opts Options) *Store {
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		index:     make(map[string]*models.QueuedRequest),
		kv:        kv,
		key:       opts.StorageKey,
		sealer:    opts.Sealer,
		maxSize:   opts.MaxSize,
		now:       opts.Now,
		listeners: make(map[int]func(Event)),
	}
}

// Init loads the persisted snapshot. Entries interrupted mid-replay are
// returned to pending.
func (s *Store) Init(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}

	data, err := s.kv.Get(ctx, s.key)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "load queue snapshot", err)
	}

	if s.sealer != nil {
		data, err = s.sealer.Open(data)
		if err != nil {
			return errors.Wrap(errors.ErrCryptoFailed, "unseal queue snapshot", err)
		}
	}

	var loaded []models.QueuedRequest
	if err := json.Unmarshal(data, &loaded); err != nil {
		return errors.Wrap(errors.ErrStorage, "decode queue snapshot", err)
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})

	s.mu.Lock()
	s.items = s.items[:0]
	s.index = make(map[string]*models.QueuedRequest, len(loaded))
	recovered := 0
	for i := range loaded {
		item := loaded[i]
		if item.ID == "" || s.index[item.ID] != nil {
			continue
		}
		if item.Status == models.StatusSyncing || !item.Status.Valid() {
			item.Status = models.StatusPending
			recovered++
		}
		s.items = append(s.items, &item)
		s.index[item.ID] = &item
		if item.CreatedAt.After(s.lastCreated) {
			s.lastCreated = item.CreatedAt
		}
	}
	count := len(s.items)
	s.mu.Unlock()

	logging.Info("Loaded offline queue", map[string]interface{}{
		"entries":   count,
		"recovered": recovered,
	})
	if recovered > 0 {
		s.persist()
	}
	return nil
}

// Enqueue buffers a request and returns its id. It never fails: a
// persistence error is logged and the entry stays in memory.
func (s *Store) Enqueue(req EnqueueRequest) string {
	s.mu.Lock()
	created := s.now().Round(0).Truncate(time.Millisecond)
	// Keep createdAt strictly increasing so reloads preserve FIFO order.
	if !created.After(s.lastCreated) {
		created = s.lastCreated.Add(time.Millisecond)
	}
	s.lastCreated = created

	item := &models.QueuedRequest{
		ID:        uuid.New(),
		Endpoint:  req.Endpoint,
		Method:    req.Method,
		Payload:   normalizePayload(req.Payload),
		CreatedAt: created,
		UpdatedAt: created,
		Retries:   0,
		Status:    models.StatusPending,
	}

	evicted := s.evictLocked()
	s.items = append(s.items, item)
	s.index[item.ID] = item
	snapshot := item.Clone()
	s.mu.Unlock()

	if evicted != nil {
		s.emit(EventRemoved, *evicted)
	}
	s.persist()
	s.emit(EventEnqueued, snapshot)

	logging.Info("Enqueued offline request", map[string]interface{}{
		"id":       snapshot.ID,
		"method":   snapshot.Method,
		"endpoint": snapshot.Endpoint,
	})
	return snapshot.ID
}

// normalizePayload copies p, treating an empty or JSON null payload as no
// body.
func normalizePayload(p json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(p)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}

// evictLocked drops the oldest terminal entry when the store is full.
func (s *Store) evictLocked() *models.QueuedRequest {
	if s.maxSize <= 0 || len(s.items) < s.maxSize {
		return nil
	}
	for i, item := range s.items {
		if item.Status.Terminal() {
			s.items = append(s.items[:i], s.items[i+1:]...)
			delete(s.index, item.ID)
			evicted := item.Clone()
			return &evicted
		}
	}
	logging.Warn("Offline queue over capacity with no terminal entries", map[string]interface{}{
		"max_size": s.maxSize,
		"entries":  len(s.items),
	})
	return nil
}

// List returns every entry, oldest first.
func (s *Store) List() []models.QueuedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.QueuedRequest, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	return out
}

// Pending returns the pending entries, oldest first.
func (s *Store) Pending() []models.QueuedRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.QueuedRequest
	for _, item := range s.items {
		if item.Status == models.StatusPending {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (models.QueuedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.index[id]
	if !ok {
		return models.QueuedRequest{}, notFound(id)
	}
	return item.Clone(), nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Stats counts entries per status.
func (s *Store) Stats() models.QueueStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() models.QueueStats {
	stats := models.QueueStats{Total: len(s.items)}
	for _, item := range s.items {
		switch item.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusSyncing:
			stats.Syncing++
		case models.StatusSynced:
			stats.Synced++
		case models.StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// UpdateStatus moves an entry along pending -> syncing -> {synced, pending, failed}.
// Only the sync orchestrator calls this.
func (s *Store) UpdateStatus(id string, status models.Status, incrementRetry bool) error {
	return s.UpdateStatusWithError(id, status, incrementRetry, "")
}

// UpdateStatusWithError is UpdateStatus that also records the last replay
// error shown next to the entry.
func (s *Store) UpdateStatusWithError(id string, status models.Status, incrementRetry bool, lastErr string) error {
	s.mu.Lock()
	item, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		err := notFound(id)
		logging.ErrorWithCode("Status update for unknown queued request", string(errors.ErrNotFound), err,
			map[string]interface{}{"id": id, "status": status})
		return err
	}
	if !models.CanTransition(item.Status, status) {
		from := item.Status
		s.mu.Unlock()
		return errors.New(errors.ErrInvalidTransition,
			fmt.Sprintf("queued request %s cannot move from %s to %s", id, from, status))
	}

	item.Status = status
	if incrementRetry {
		item.Retries++
	}
	if lastErr != "" {
		item.LastError = lastErr
	} else if status == models.StatusSynced {
		item.LastError = ""
	}
	item.UpdatedAt = s.now()
	snapshot := item.Clone()
	s.mu.Unlock()

	s.persist()
	s.emit(EventUpdated, snapshot)
	return nil
}

// Retry returns a failed entry to pending with its retry counter reset.
// This is the manual retry offered to the user.
func (s *Store) Retry(id string) error {
	s.mu.Lock()
	item, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	if item.Status != models.StatusFailed {
		from := item.Status
		s.mu.Unlock()
		return errors.New(errors.ErrInvalidTransition,
			fmt.Sprintf("queued request %s is %s, only failed requests can be retried", id, from))
	}
	resetForRetry(item, s.now())
	snapshot := item.Clone()
	s.mu.Unlock()

	s.persist()
	s.emit(EventUpdated, snapshot)
	return nil
}

// RetryFailed resets every failed entry to pending and returns how many
// were reset.
func (s *Store) RetryFailed() int {
	s.mu.Lock()
	now := s.now()
	var reset []models.QueuedRequest
	for _, item := range s.items {
		if item.Status == models.StatusFailed {
			resetForRetry(item, now)
			reset = append(reset, item.Clone())
		}
	}
	s.mu.Unlock()

	if len(reset) == 0 {
		return 0
	}
	s.persist()
	for _, item := range reset {
		s.emit(EventUpdated, item)
	}
	logging.Info("Reset failed requests for retry", map[string]interface{}{"count": len(reset)})
	return len(reset)
}

func resetForRetry(item *models.QueuedRequest, now time.Time) {
	item.Status = models.StatusPending
	item.Retries = 0
	item.LastError = ""
	item.UpdatedAt = now
}

// Remove deletes a single entry, typically after a successful sync.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	item, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	for i, it := range s.items {
		if it.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	delete(s.index, id)
	snapshot := item.Clone()
	s.mu.Unlock()

	s.persist()
	s.emit(EventRemoved, snapshot)
	return nil
}

// Clear removes every entry regardless of status.
func (s *Store) Clear() {
	s.mu.Lock()
	count := len(s.items)
	s.items = nil
	s.index = make(map[string]*models.QueuedRequest)
	s.mu.Unlock()

	s.persist()
	s.emit(EventCleared, models.QueuedRequest{})
	logging.Info("Offline queue cleared", map[string]interface{}{"removed": count})
}

// Merge adds entries reported by the backend that the store does not know
// yet. Known ids are left untouched and entries the backend already reports
// as synced are skipped. Returns the number of entries added.
func (s *Store) Merge(entries []models.QueuedRequest) int {
	s.mu.Lock()
	var added []models.QueuedRequest
	for _, e := range entries {
		if e.ID == "" || e.Status == models.StatusSynced || s.index[e.ID] != nil {
			continue
		}
		item := e.Clone()
		if item.Status == models.StatusSyncing || !item.Status.Valid() {
			item.Status = models.StatusPending
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = s.now()
		}
		s.items = append(s.items, &item)
		s.index[item.ID] = &item
		if item.CreatedAt.After(s.lastCreated) {
			s.lastCreated = item.CreatedAt
		}
		added = append(added, item.Clone())
	}
	if len(added) > 0 {
		// Existing entries are already ordered, so a stable sort only
		// slots the new ones in by createdAt.
		sort.SliceStable(s.items, func(i, j int) bool {
			return s.items[i].CreatedAt.Before(s.items[j].CreatedAt)
		})
	}
	s.mu.Unlock()

	if len(added) == 0 {
		return 0
	}
	s.persist()
	for _, item := range added {
		s.emit(EventEnqueued, item)
	}
	return len(added)
}

// Subscribe registers fn for every mutation event. The returned function
// unregisters it.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.listeners, id)
			s.listenerMu.Unlock()
		})
	}
}

func (s *Store) emit(t EventType, req models.QueuedRequest) {
	s.listenerMu.RLock()
	if len(s.listeners) == 0 {
		s.listenerMu.RUnlock()
		return
	}
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.RUnlock()

	ev := Event{Type: t, Request: req, Stats: s.Stats()}
	for _, fn := range fns {
		fn(ev)
	}
}

// Flush writes the current snapshot synchronously.
func (s *Store) Flush(ctx context.Context) error {
	version, data, err := s.snapshot()
	if err != nil {
		return err
	}
	return s.writeVersion(ctx, version, data)
}

// Close flushes the snapshot and drops every subscriber. The KV itself is
// owned by the caller.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)

	s.listenerMu.Lock()
	s.listeners = make(map[int]func(Event))
	s.listenerMu.Unlock()
	return err
}

// persist writes the snapshot after a mutation, logging failures.
func (s *Store) persist() {
	version, data, err := s.snapshot()
	if err == nil {
		err = s.writeVersion(context.Background(), version, data)
	}
	if err != nil {
		logging.ErrorWithCode("Failed to persist offline queue", string(errors.CodeOf(err)), err,
			map[string]interface{}{"key": s.key})
	}
}

// snapshot encodes the current entries and stamps them with a version.
func (s *Store) snapshot() (uint64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	out := make([]models.QueuedRequest, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return 0, nil, errors.Wrap(errors.ErrStorage, "encode queue snapshot", err)
	}
	return s.version, data, nil
}

// writeVersion stores data unless a newer snapshot was already written, so
// a slow writer never overwrites fresher state.
func (s *Store) writeVersion(ctx context.Context, version uint64, data []byte) error {
	if s.kv == nil {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if version <= s.written {
		return nil
	}

	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return errors.Wrap(errors.ErrCryptoFailed, "seal queue snapshot", err)
		}
		data = sealed
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return errors.Wrap(errors.ErrStorage, "write queue snapshot", err)
	}
	s.written = version
	return nil
}

func notFound(id string) error {
	return errors.New(errors.ErrNotFound, fmt.Sprintf("queued request %s not found", id))
}
