package diagnostics

import "fmt"

// Sampler tags a sampled fraction of outbound messages with a diagnostic
// property. It is driven by a simple per-client counter: every
// SetPercentage call resets the counter to 0, and ShouldSample advances
// it once per outbound message.
type Sampler struct {
	percentage int // 0-100 inclusive
	counter    int
}

// NewSampler constructs a Sampler with sampling disabled (0%).
func NewSampler() *Sampler { return &Sampler{} }

// SetPercentage validates and stores the sampling percentage, resetting the
// internal counter to 0.
func (s *Sampler) SetPercentage(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("diagnostics: sampling percentage %d out of range [0,100]", pct)
	}
	s.percentage = pct
	s.counter = 0
	return nil
}

// Percentage returns the currently configured percentage.
func (s *Sampler) Percentage() int { return s.percentage }

// ShouldSample advances the per-message counter and reports whether this
// message should be tagged, using the same every-Nth-message approximation
// as the original source: a message is sampled when the running counter
// modulo 100 falls below the configured percentage.
func (s *Sampler) ShouldSample() bool {
	if s.percentage <= 0 {
		return false
	}
	sample := s.counter%100 < s.percentage
	s.counter++
	return sample
}
