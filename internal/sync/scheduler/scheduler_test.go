// Package scheduler tests for background sync scheduling functionality.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/connectivity"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
	syncpkg "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/sync"
)

// =====================================================
// Test Helpers
// =====================================================

// fakeSyncer counts passes and optionally blocks inside Sync.
type fakeSyncer struct {
	calls   atomic.Int32
	result  models.SyncResult
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (f *fakeSyncer) Sync(ctx context.Context) models.SyncResult {
	f.calls.Add(1)
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.SyncResult{}
		}
	}
	return f.result
}

func (f *fakeSyncer) Status() syncpkg.Status        { return syncpkg.StatusIdle }
func (f *fakeSyncer) LastSync() *time.Time          { return nil }
func (f *fakeSyncer) LastResult() models.SyncResult { return f.result }

type fakeStats struct {
	pending atomic.Int32
}

func (f *fakeStats) Stats() models.QueueStats {
	n := int(f.pending.Load())
	return models.QueueStats{Total: n, Pending: n}
}

func createTestScheduler(t *testing.T, online bool) (*fakeSyncer, *connectivity.Monitor, *fakeStats, *Scheduler) {
	t.Helper()
	syncer := &fakeSyncer{result: models.SyncResult{Processed: 1}}
	monitor := connectivity.NewMonitor(online)
	stats := &fakeStats{}
	config := &SchedulerConfig{
		QueueInterval: 20 * time.Millisecond,
	}
	s := NewScheduler(syncer, monitor, stats, config)
	t.Cleanup(s.Stop)
	return syncer, monitor, stats, s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// =====================================================
// Construction Tests
// =====================================================

// TestDefaultSchedulerConfig verifies default configuration.
func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	if config.QueueInterval != 1*time.Minute {
		t.Errorf("QueueInterval = %v, want 1m", config.QueueInterval)
	}
	if config.SyncTimeout != 5*time.Minute {
		t.Errorf("SyncTimeout = %v, want 5m", config.SyncTimeout)
	}
}

// TestNewScheduler_nilConfig verifies defaults are applied.
func TestNewScheduler_nilConfig(t *testing.T) {
	s := NewScheduler(&fakeSyncer{}, connectivity.NewMonitor(false), nil, nil)

	if s.queueInterval != time.Minute {
		t.Errorf("queueInterval = %v, want 1m", s.queueInterval)
	}
	if s.syncTimeout != 5*time.Minute {
		t.Errorf("syncTimeout = %v, want 5m", s.syncTimeout)
	}
}

// =====================================================
// Lifecycle Tests
// =====================================================

// TestScheduler_StartStop verifies running state transitions.
func TestScheduler_StartStop(t *testing.T) {
	_, _, _, s := createTestScheduler(t, false)

	if s.IsRunning() {
		t.Error("scheduler should not be running before Start")
	}
	s.Start(context.Background())
	if !s.IsRunning() {
		t.Error("scheduler should be running after Start")
	}
	s.Start(context.Background())

	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler should not be running after Stop")
	}
	s.Stop()
}

// TestScheduler_Stop_withoutStart verifies Stop is safe before Start.
func TestScheduler_Stop_withoutStart(t *testing.T) {
	_, _, _, s := createTestScheduler(t, false)
	s.Stop()
}

// TestScheduler_StartWhenOnline verifies an initial pass runs on Start.
func TestScheduler_StartWhenOnline(t *testing.T) {
	syncer, _, _, s := createTestScheduler(t, true)

	s.Start(context.Background())
	waitFor(t, "initial pass", func() bool { return syncer.calls.Load() >= 1 })
}

// =====================================================
// Reconnect Trigger Tests
// =====================================================

// TestScheduler_ReconnectTriggersSync verifies a false->true transition runs a pass.
func TestScheduler_ReconnectTriggersSync(t *testing.T) {
	syncer, _, _, s := createTestScheduler(t, false)
	s.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	if n := syncer.calls.Load(); n != 0 {
		t.Fatalf("offline scheduler ran %d passes", n)
	}

	s.SetOnlineStatus(true)
	waitFor(t, "reconnect pass", func() bool { return syncer.calls.Load() >= 1 })

	waitFor(t, "last result", func() bool { return s.Status().LastSyncTime != nil })
	if got := s.Status().LastResult; got != (models.SyncResult{Processed: 1}) {
		t.Errorf("LastResult = %+v", got)
	}
}

// TestScheduler_StopUnsubscribes verifies reconnects after Stop are ignored.
func TestScheduler_StopUnsubscribes(t *testing.T) {
	syncer, monitor, _, s := createTestScheduler(t, false)
	s.Start(context.Background())
	s.Stop()

	monitor.Set(true)
	time.Sleep(30 * time.Millisecond)
	if n := syncer.calls.Load(); n != 0 {
		t.Errorf("pass ran after Stop: %d", n)
	}
}

// =====================================================
// Periodic Loop Tests
// =====================================================

// TestScheduler_periodicLoop_onlyWithPending verifies the ticker skips an empty queue.
func TestScheduler_periodicLoop_onlyWithPending(t *testing.T) {
	syncer, monitor, stats, s := createTestScheduler(t, false)
	s.Start(context.Background())

	monitor.Set(true)
	waitFor(t, "reconnect pass", func() bool { return syncer.calls.Load() == 1 })

	time.Sleep(80 * time.Millisecond)
	if n := syncer.calls.Load(); n != 1 {
		t.Fatalf("empty queue triggered %d passes", n)
	}

	stats.pending.Store(2)
	waitFor(t, "periodic pass", func() bool { return syncer.calls.Load() >= 2 })
}

// TestScheduler_periodicLoop_offline verifies no passes run while offline.
func TestScheduler_periodicLoop_offline(t *testing.T) {
	syncer, _, stats, s := createTestScheduler(t, false)
	stats.pending.Store(5)
	s.Start(context.Background())

	time.Sleep(80 * time.Millisecond)
	if n := syncer.calls.Load(); n != 0 {
		t.Errorf("offline scheduler ran %d passes", n)
	}
}

// TestScheduler_WatchDrivesMonitor verifies the probe loop flips connectivity.
func TestScheduler_WatchDrivesMonitor(t *testing.T) {
	syncer := &fakeSyncer{}
	monitor := connectivity.NewMonitor(false)
	s := NewScheduler(syncer, monitor, nil, &SchedulerConfig{
		QueueInterval: time.Hour,
		Source:        connectivity.SourceFunc(func(context.Context) error { return nil }),
		Watch:         connectivity.WatchOptions{Interval: 10 * time.Millisecond},
	})
	t.Cleanup(s.Stop)

	s.Start(context.Background())
	waitFor(t, "monitor online", monitor.IsOnline)
	waitFor(t, "reconnect pass", func() bool { return syncer.calls.Load() >= 1 })
}

// =====================================================
// Manual Trigger Tests
// =====================================================

// TestScheduler_TriggerSync_inProgress verifies concurrent triggers are rejected.
func TestScheduler_TriggerSync_inProgress(t *testing.T) {
	syncer, _, _, s := createTestScheduler(t, true)
	syncer.block = make(chan struct{})
	syncer.entered = make(chan struct{})

	if !s.TriggerSync(context.Background()) {
		t.Fatal("first TriggerSync should start a pass")
	}
	<-syncer.entered

	if s.TriggerSync(context.Background()) {
		t.Error("second TriggerSync should be rejected while in progress")
	}
	if !s.Status().SyncInProgress {
		t.Error("Status should report a pass in progress")
	}

	close(syncer.block)
	waitFor(t, "pass to finish", func() bool { return !s.Status().SyncInProgress })
	if n := syncer.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

// TestScheduler_SyncNow verifies the blocking pass returns the result.
func TestScheduler_SyncNow(t *testing.T) {
	syncer, _, _, s := createTestScheduler(t, true)
	syncer.result = models.SyncResult{Processed: 2, Failed: 1}

	got := s.SyncNow(context.Background())
	if got != syncer.result {
		t.Errorf("SyncNow = %+v, want %+v", got, syncer.result)
	}
	status := s.Status()
	if status.LastSyncTime == nil || status.LastResult != syncer.result {
		t.Errorf("status = %+v", status)
	}
}

// TestScheduler_SyncNow_emptyPass verifies no-op passes leave history alone.
func TestScheduler_SyncNow_emptyPass(t *testing.T) {
	syncer, _, _, s := createTestScheduler(t, true)
	syncer.result = models.SyncResult{}

	s.SyncNow(context.Background())
	if s.Status().LastSyncTime != nil {
		t.Error("LastSyncTime should stay unset after an empty pass")
	}
}

// TestScheduler_StopCancelsInFlight verifies Stop cancels a blocked pass.
func TestScheduler_StopCancelsInFlight(t *testing.T) {
	syncer, _, _, s := createTestScheduler(t, true)
	syncer.block = make(chan struct{})
	syncer.entered = make(chan struct{})

	s.Start(context.Background())
	<-syncer.entered

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a pass was blocked")
	}

	if s.TriggerSync(context.Background()) {
		t.Error("TriggerSync after Stop should be rejected")
	}
}

// TestScheduler_Status verifies queue counts and connectivity are reported.
func TestScheduler_Status(t *testing.T) {
	_, monitor, stats, s := createTestScheduler(t, false)
	stats.pending.Store(3)

	status := s.Status()
	if status.IsOnline || status.IsRunning {
		t.Errorf("status = %+v", status)
	}
	if status.Queue.Pending != 3 {
		t.Errorf("Queue.Pending = %d, want 3", status.Queue.Pending)
	}

	monitor.Set(true)
	if !s.IsOnline() {
		t.Error("IsOnline should follow the monitor")
	}
}

// TestScheduler_concurrentAccess exercises status reads against triggers.
func TestScheduler_concurrentAccess(t *testing.T) {
	_, _, _, s := createTestScheduler(t, true)
	s.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.TriggerSync(context.Background())
		}()
		go func(online bool) {
			defer wg.Done()
			_ = s.Status()
			s.SetOnlineStatus(online)
		}(i%2 == 0)
	}
	wg.Wait()
}
