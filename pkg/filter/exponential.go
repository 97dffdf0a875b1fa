// Package filter provides low-pass filters for actuator position signals.
package filter

import (
	"math"
	"sync"

	"github.com/proteus-gripper/proteus/pkg/robot"
)

// Exponential is a single-state exponential moving average:
//
//	filtered[0] = raw[0]
//	filtered[n] = alpha*filtered[n-1] + (1-alpha)*raw[n]
//
// Alpha near 1 smooths heavily, near 0 tracks the raw signal. It is safe to
// change alpha from one goroutine while another calls Update.
type Exponential struct {
	mu       sync.Mutex
	alpha    float64
	previous float64
	seeded   bool
}

// New creates an unseeded filter.
func New(alpha float64) (*Exponential, error) {
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	return &Exponential{alpha: alpha}, nil
}

// Update feeds one raw sample and returns the filtered value.
func (f *Exponential) Update(raw float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.seeded {
		f.previous = raw
		f.seeded = true
		return raw
	}
	f.previous = f.alpha*f.previous + (1-f.alpha)*raw
	return f.previous
}

// Seed sets the filter history from a live sample unless it is already
// seeded. It reports whether the sample was used.
func (f *Exponential) Seed(raw float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seeded {
		return false
	}
	f.previous = raw
	f.seeded = true
	return true
}

// SetAlpha changes the coefficient without touching the history. Values
// outside [0, 1] are rejected and the previous coefficient is kept.
func (f *Exponential) SetAlpha(alpha float64) error {
	if err := checkAlpha(alpha); err != nil {
		return err
	}
	f.mu.Lock()
	f.alpha = alpha
	f.mu.Unlock()
	return nil
}

// Alpha returns the current coefficient.
func (f *Exponential) Alpha() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alpha
}

// Value returns the last filtered value and whether the filter is seeded.
func (f *Exponential) Value() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.previous, f.seeded
}

// Seeded reports whether the filter has history.
func (f *Exponential) Seeded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeded
}

func checkAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return &robot.ValidationError{Field: "alpha", Value: alpha, Reason: "must be within [0, 1]"}
	}
	return nil
}
