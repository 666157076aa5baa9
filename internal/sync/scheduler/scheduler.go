// Package scheduler runs replay passes in the background: on reconnect, on a
// fixed cadence while online, and on demand.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/connectivity"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
	syncpkg "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/sync"
)

// StatsSource reports queue counts for Status.
type StatsSource interface {
	Stats() models.QueueStats
}

// Scheduler manages background sync operations.
type Scheduler struct {
	syncer        syncpkg.Syncer
	monitor       *connectivity.Monitor
	stats         StatsSource
	source        connectivity.Source
	watch         connectivity.WatchOptions
	queueInterval time.Duration
	syncTimeout   time.Duration

	stopCh      chan struct{}
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	mu             sync.RWMutex
	isRunning      bool
	stopped        bool
	lastSyncTime   time.Time
	lastResult     models.SyncResult
	syncInProgress bool
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	QueueInterval time.Duration // How often to retry pending entries while online (default: 1 minute)
	SyncTimeout   time.Duration // Upper bound for one pass (default: 5 minutes)

	// Source, when set, is probed to drive the connectivity monitor.
	Source connectivity.Source
	Watch  connectivity.WatchOptions
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		QueueInterval: 1 * time.Minute,
		SyncTimeout:   5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(syncer syncpkg.Syncer, monitor *connectivity.Monitor, stats StatsSource, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	defaults := DefaultSchedulerConfig()
	if config.QueueInterval <= 0 {
		config.QueueInterval = defaults.QueueInterval
	}
	if config.SyncTimeout <= 0 {
		config.SyncTimeout = defaults.SyncTimeout
	}

	return &Scheduler{
		syncer:        syncer,
		monitor:       monitor,
		stats:         stats,
		source:        config.Source,
		watch:         config.Watch,
		queueInterval: config.QueueInterval,
		syncTimeout:   config.SyncTimeout,
		stopCh:        make(chan struct{}),
	}
}

// Start starts the background loops and hooks the reconnect trigger. A pass
// is kicked off right away when the monitor is already online.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning || s.stopped {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.unsubscribe = s.monitor.OnReconnect(func() {
		logging.Info("Connectivity restored, triggering sync")
		s.TriggerSync(runCtx)
	})

	s.wg.Add(1)
	go s.queueProcessorLoop(runCtx)

	if s.source != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			connectivity.Watch(runCtx, s.monitor, s.source, s.watch)
		}()
	}

	logging.Info("Background sync scheduler started", map[string]interface{}{
		"queue_interval_seconds": s.queueInterval.Seconds(),
		"probing":                s.source != nil,
	})

	if s.monitor.IsOnline() {
		s.TriggerSync(runCtx)
	}
}

// Stop stops the background loops, cancels an in-flight pass and waits for
// everything to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopCh)
	cancel()

	s.wg.Wait()

	logging.Info("Background sync scheduler stopped")
}

// SetOnlineStatus feeds a platform connectivity signal into the monitor.
// Going online fires the reconnect trigger.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.monitor.Set(isOnline)
}

// queueProcessorLoop retries pending entries on a fixed cadence while online.
func (s *Scheduler) queueProcessorLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			if s.stats != nil && s.stats.Stats().Pending == 0 {
				continue
			}
			s.TriggerSync(ctx)
		}
	}
}

// TriggerSync starts a pass in the background.
// Returns true if a pass was started, false if one is already in progress
// or the scheduler has been stopped.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.Lock()
	if s.syncInProgress || s.stopped {
		s.mu.Unlock()
		return false
	}
	s.syncInProgress = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.syncInProgress = false
			s.mu.Unlock()
		}()
		s.runSync(ctx, "Background sync completed")
	}()
	return true
}

// SyncNow runs a pass and waits for it. A pass already in flight makes this
// call a no-op returning {0,0}.
func (s *Scheduler) SyncNow(ctx context.Context) models.SyncResult {
	return s.runSync(ctx, "Manual sync completed")
}

func (s *Scheduler) runSync(ctx context.Context, message string) models.SyncResult {
	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	result := s.syncer.Sync(syncCtx)
	if result.Processed == 0 && result.Failed == 0 {
		return result
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.lastResult = result
	s.mu.Unlock()

	logging.Info(message, map[string]interface{}{
		"processed": result.Processed,
		"failed":    result.Failed,
	})
	return result
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	IsRunning      bool              `json:"is_running"`
	IsOnline       bool              `json:"is_online"`
	SyncInProgress bool              `json:"sync_in_progress"`
	LastSyncTime   *time.Time        `json:"last_sync_time,omitempty"`
	LastResult     models.SyncResult `json:"last_result"`
	Queue          models.QueueStats `json:"queue"`
}

// Status returns the current status of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	status := Status{
		IsRunning:      s.isRunning,
		IsOnline:       s.monitor.IsOnline(),
		SyncInProgress: s.syncInProgress || s.syncer.Status() == syncpkg.StatusSyncing,
		LastResult:     s.lastResult,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	s.mu.RUnlock()

	if s.stats != nil {
		status.Queue = s.stats.Stats()
	}
	return status
}

// IsOnline returns whether the monitor reports the backend reachable.
func (s *Scheduler) IsOnline() bool {
	return s.monitor.IsOnline()
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
