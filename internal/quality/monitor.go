// Package quality samples connection round-trip latency and classifies it into tiers.
package quality

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/translation-gateway/internal/observability"
)

// Tier is a coarse connection quality class
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
)

// Tier upper bounds (inclusive)
const (
	excellentMax = 100 * time.Millisecond
	goodMax      = 300 * time.Millisecond
	fairMax      = 500 * time.Millisecond
)

// Classify maps a round-trip latency onto a tier
func Classify(latency time.Duration) Tier {
	switch {
	case latency <= excellentMax:
		return TierExcellent
	case latency <= goodMax:
		return TierGood
	case latency <= fairMax:
		return TierFair
	default:
		return TierPoor
	}
}

// Sample is one probe outcome
type Sample struct {
	Latency time.Duration
	Tier    Tier
	At      time.Time
	Err     error // set when the probe failed; the sample is then classified poor
}

// LatencyMs returns the latency in whole milliseconds
func (s Sample) LatencyMs() int64 {
	return s.Latency.Milliseconds()
}

// Prober performs one round-trip probe over a connection
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context) (time.Duration, error)

func (f ProberFunc) Probe(ctx context.Context) (time.Duration, error) {
	return f(ctx)
}

// Monitor probes one connection on a fixed interval until its context is cancelled
type Monitor struct {
	prober   Prober
	interval time.Duration
	onSample func(Sample)
	logger   zerolog.Logger

	mu   sync.RWMutex
	last *Sample
}

// NewMonitor creates a monitor. onSample, when set, is called from the monitor goroutine.
func NewMonitor(prober Prober, interval time.Duration, onSample func(Sample)) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		onSample: onSample,
		logger:   observability.Component("quality"),
	}
}

// Run probes immediately and then every interval. It returns when ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.probeOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	// A probe may take at most one interval; no answer by then is poor
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	start := time.Now()
	latency, err := m.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		return
	}

	sample := Sample{Latency: latency, Tier: Classify(latency), At: time.Now(), Err: err}
	if err != nil {
		sample.Latency = time.Since(start)
		sample.Tier = TierPoor
		m.logger.Debug().Err(err).Msg("Connection probe failed")
	}

	m.mu.Lock()
	m.last = &sample
	m.mu.Unlock()

	observability.RecordQualitySample(string(sample.Tier), sample.Latency)
	if m.onSample != nil {
		m.onSample(sample)
	}
}

// Last returns the most recent sample, if any
func (m *Monitor) Last() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Sample{}, false
	}
	return *m.last, true
}
