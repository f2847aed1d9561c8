// Package harness runs timed spawn, probe and teardown trials against
// short-lived simulated nodes and collects their durations.
package harness

import (
	"errors"
	"time"
)

// Samples is an ordered set of successful trial durations in seconds.
type Samples []float64

// Add appends d to the set in seconds.
func (s *Samples) Add(d time.Duration) {
	*s = append(*s, d.Seconds())
}

// FatalError marks a failure that invalidates the whole run rather than
// a single trial.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so that Collect stops instead of skipping the trial.
// A nil err yields nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}

	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
