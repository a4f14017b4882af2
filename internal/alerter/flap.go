package alerter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FlapDetector tracks rapid state changes and suppresses flapping alerts.
type FlapDetector struct {
	log       zerolog.Logger
	threshold int           // number of state changes to trigger flap
	window    time.Duration // time window for threshold
	now       func() time.Time
	mu        sync.Mutex
	history   map[string][]time.Time // key -> timestamps of changes
	flapping  map[string]bool
}

// NewFlapDetector creates a new flap detector.
func NewFlapDetector(log zerolog.Logger, threshold int, window time.Duration) *FlapDetector {
	return &FlapDetector{
		log:       log.With().Str("component", "flap-detector").Logger(),
		threshold: threshold,
		window:    window,
		now:       time.Now,
		history:   make(map[string][]time.Time),
		flapping:  make(map[string]bool),
	}
}

// RecordChange records a state change and returns whether the key is flapping.
// If flapping just started, returns (true, true). If already flapping, returns (true, false).
// A change that falls below the threshold clears the flapping mark, since the
// caller announces it and CheckStable has nothing left to report.
func (f *FlapDetector) RecordChange(key string) (flapping bool, justStarted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	pruned := f.recent(key, now)
	pruned = append(pruned, now)
	f.history[key] = pruned

	if len(pruned) < f.threshold {
		if f.flapping[key] {
			delete(f.flapping, key)
			f.log.Info().Str("key", key).Msg("flapping stopped")
		}
		return false, false
	}

	wasFlapping := f.flapping[key]
	f.flapping[key] = true
	if !wasFlapping {
		f.log.Warn().Str("key", key).Int("changes", len(pruned)).Dur("window", f.window).Msg("flapping detected")
		return true, true
	}
	return true, false
}

// IsFlapping returns whether a key is currently marked as flapping.
func (f *FlapDetector) IsFlapping(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flapping[key]
}

// CheckStable returns true exactly once when a flapping key has had fewer
// than threshold changes within the window.
func (f *FlapDetector) CheckStable(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.flapping[key] {
		return false
	}

	recent := f.recent(key, f.now())
	f.history[key] = recent
	if len(recent) >= f.threshold {
		return false
	}

	delete(f.flapping, key)
	f.log.Info().Str("key", key).Msg("flapping stopped")
	return true
}

// recent returns the change timestamps of key inside the window ending at now.
// Callers hold f.mu.
func (f *FlapDetector) recent(key string, now time.Time) []time.Time {
	cutoff := now.Add(-f.window)
	timestamps := f.history[key]
	pruned := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}
