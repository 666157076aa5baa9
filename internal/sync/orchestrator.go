// Package sync replays the offline queue against the backend once
// connectivity returns.
package sync

import (
	"context"
	stderrors "errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
)

const (
	DefaultMaxRetries  = 3
	DefaultGracePeriod = 1500 * time.Millisecond
)

// Status represents the orchestrator's current activity.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
)

// Queue is the subset of the queue store the orchestrator drives.
type Queue interface {
	Pending() []models.QueuedRequest
	Get(id string) (models.QueuedRequest, error)
	UpdateStatus(id string, status models.Status, incrementRetry bool) error
	UpdateStatusWithError(id string, status models.Status, incrementRetry bool, lastErr string) error
	Remove(id string) error
	Stats() models.QueueStats
}

// Connectivity reports whether the backend is reachable.
type Connectivity interface {
	IsOnline() bool
}

// Replayer sends one queued request to the backend.
type Replayer interface {
	Replay(ctx context.Context, req models.QueuedRequest) error
}

// Summary is published after every pass that attempted at least one entry.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// Notifier receives pass summaries for user-facing display.
type Notifier interface {
	NotifySync(Summary)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Summary)

// NotifySync implements Notifier.
func (f NotifierFunc) NotifySync(s Summary) { f(s) }

// Options configures an Orchestrator.
type Options struct {
	// MaxRetries is the number of transient failures after which an entry
	// is marked failed.
	MaxRetries int
	// GracePeriod is how long a synced entry stays visible before removal.
	GracePeriod time.Duration
	Notifier    Notifier
}

// Orchestrator replays pending queue entries sequentially in FIFO order.
type Orchestrator struct {
	queue    Queue
	monitor  Connectivity
	replayer Replayer
	opts     Options

	inFlight atomic.Bool

	mu         stdsync.Mutex
	status     Status
	lastSync   *time.Time
	lastResult models.SyncResult
	timers     map[string]*time.Timer
	closed     bool
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(queue Queue, monitor Connectivity, replayer Replayer, opts Options) *Orchestrator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	} else if opts.GracePeriod == 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	return &Orchestrator{
		queue:    queue,
		monitor:  monitor,
		replayer: replayer,
		opts:     opts,
		status:   StatusIdle,
		timers:   make(map[string]*time.Timer),
	}
}

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// LastSync returns when the last non-empty pass finished.
func (o *Orchestrator) LastSync() *time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSync
}

// LastResult returns the outcome of the last non-empty pass.
func (o *Orchestrator) LastResult() models.SyncResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResult
}

// Sync runs one replay pass. It returns {0,0} without touching the queue when
// another pass is in flight, the monitor is offline, or nothing is pending.
// Replay failures are recorded on the entries and never returned.
func (o *Orchestrator) Sync(ctx context.Context) models.SyncResult {
	if !o.inFlight.CompareAndSwap(false, true) {
		logging.Debug("Sync already in progress, coalescing")
		return models.SyncResult{}
	}
	defer o.inFlight.Store(false)

	if !o.monitor.IsOnline() {
		return models.SyncResult{}
	}
	pending := o.queue.Pending()
	if len(pending) == 0 {
		return models.SyncResult{}
	}

	o.setStatus(StatusSyncing)
	started := time.Now()
	logging.Info("Sync pass started", map[string]interface{}{"pending": len(pending)})

	var result models.SyncResult
	for _, req := range pending {
		if ctx.Err() != nil {
			break
		}
		if !o.monitor.IsOnline() {
			logging.Info("Went offline during sync, leaving remaining entries pending")
			break
		}
		outcome := o.replayOne(ctx, req)
		switch outcome {
		case outcomeSynced:
			result.Processed++
		case outcomeFailed:
			result.Failed++
		case outcomeCancelled:
			// ctx is done; the loop guard stops the pass.
		}
	}

	finished := time.Now()
	o.mu.Lock()
	o.status = StatusIdle
	o.lastSync = &finished
	o.lastResult = result
	o.mu.Unlock()

	summary := Summary{
		Processed: result.Processed,
		Failed:    result.Failed,
		Remaining: o.queue.Stats().Pending,
	}
	logging.Info("Sync pass finished", map[string]interface{}{
		"processed":   summary.Processed,
		"failed":      summary.Failed,
		"remaining":   summary.Remaining,
		"duration_ms": finished.Sub(started).Milliseconds(),
	})
	if o.opts.Notifier != nil && (summary.Processed > 0 || summary.Failed > 0) {
		o.opts.Notifier.NotifySync(summary)
	}
	return result
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSynced
	outcomeFailed
	outcomeCancelled
)

func (o *Orchestrator) replayOne(ctx context.Context, req models.QueuedRequest) outcome {
	// The entry may have been removed or retried since the snapshot.
	if err := o.queue.UpdateStatus(req.ID, models.StatusSyncing, false); err != nil {
		return outcomeSkipped
	}

	err := o.replayer.Replay(ctx, req)
	if err == nil {
		if err := o.queue.UpdateStatus(req.ID, models.StatusSynced, false); err != nil {
			logging.Error("Failed to mark entry synced", err, map[string]interface{}{"id": req.ID})
			return outcomeSkipped
		}
		o.scheduleRemoval(req.ID)
		return outcomeSynced
	}

	if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
		o.update(req.ID, models.StatusPending, false, err)
		return outcomeCancelled
	}

	code := apperrors.ReplayCode(err)
	fields := map[string]interface{}{
		"id":       req.ID,
		"endpoint": req.Endpoint,
		"method":   string(req.Method),
		"code":     string(code),
	}

	if code != apperrors.ErrNetwork {
		logging.Warn("Replay rejected, marking failed", fields, map[string]interface{}{"error": err.Error()})
		o.update(req.ID, models.StatusFailed, false, err)
		return outcomeFailed
	}

	attempts := req.Retries + 1
	fields["retries"] = attempts
	if attempts >= o.opts.MaxRetries {
		exhausted := apperrors.Wrap(apperrors.ErrSyncFailed, fmt.Sprintf("gave up after %d attempts", attempts), err)
		logging.ErrorWithCode("Replay retries exhausted, marking failed", string(apperrors.ErrSyncFailed), err, fields)
		o.update(req.ID, models.StatusFailed, true, exhausted)
		return outcomeFailed
	}
	logging.Info("Replay failed, will retry", fields)
	o.update(req.ID, models.StatusPending, true, err)
	return outcomeFailed
}

func (o *Orchestrator) update(id string, status models.Status, incrementRetry bool, cause error) {
	if err := o.queue.UpdateStatusWithError(id, status, incrementRetry, cause.Error()); err != nil {
		logging.Error("Failed to record replay outcome", err, map[string]interface{}{
			"id":     id,
			"status": string(status),
		})
	}
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

// scheduleRemoval drops a synced entry after the grace period.
func (o *Orchestrator) scheduleRemoval(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if t, ok := o.timers[id]; ok {
		t.Stop()
	}
	o.timers[id] = time.AfterFunc(o.opts.GracePeriod, func() {
		o.mu.Lock()
		delete(o.timers, id)
		o.mu.Unlock()
		o.removeSynced(id)
	})
}

// removeSynced removes id if it is still synced; the user may have cleared
// it in the meantime.
func (o *Orchestrator) removeSynced(id string) {
	req, err := o.queue.Get(id)
	if err != nil || req.Status != models.StatusSynced {
		return
	}
	if err := o.queue.Remove(id); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		logging.Error("Failed to remove synced entry", err, map[string]interface{}{"id": id})
	}
}

// PendingRemovals returns how many synced entries are waiting out the grace
// period.
func (o *Orchestrator) PendingRemovals() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}

// Close stops outstanding grace timers and removes their entries right away.
// Entries synced after Close stay in the queue until removed explicitly.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	ids := make([]string, 0, len(o.timers))
	for id, t := range o.timers {
		t.Stop()
		ids = append(ids, id)
	}
	o.timers = make(map[string]*time.Timer)
	o.mu.Unlock()

	for _, id := range ids {
		o.removeSynced(id)
	}
}
