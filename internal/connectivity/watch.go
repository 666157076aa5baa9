package connectivity

import (
	"context"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
)

// Source reports whether the backend can be reached right now.
type Source interface {
	Probe(ctx context.Context) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) error

// Probe implements Source.
func (f SourceFunc) Probe(ctx context.Context) error { return f(ctx) }

const (
	defaultProbeInterval    = 10 * time.Second
	defaultFailureThreshold = 2
	defaultProbeTimeout     = 5 * time.Second
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Interval time.Duration
	// FailureThreshold is the number of consecutive failed probes before the
	// monitor is flipped offline. A single success flips it back online.
	FailureThreshold int
	Timeout          time.Duration
}

// Watch probes src on a fixed cadence and feeds the result into m until ctx
// is cancelled. It blocks; run it in its own goroutine.
func Watch(ctx context.Context, m *Monitor, src Source, opts WatchOptions) {
	if opts.Interval <= 0 {
		opts.Interval = defaultProbeInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProbeTimeout
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		failures = probeOnce(ctx, m, src, opts, failures)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func probeOnce(ctx context.Context, m *Monitor, src Source, opts WatchOptions, failures int) int {
	probeCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := src.Probe(probeCtx); err != nil {
		if ctx.Err() != nil {
			return failures
		}
		failures++
		logging.Debug("Connectivity probe failed", map[string]interface{}{
			"consecutive_failures": failures,
			"error":                err.Error(),
		})
		if failures >= opts.FailureThreshold {
			m.Set(false)
		}
		return failures
	}

	m.Set(true)
	return 0
}
