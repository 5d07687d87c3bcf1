package iqs269

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed or out-of-range configuration value.
// Setup is never partially applied once one is returned.
type ValidationError struct {
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("iqs269: invalid %s: %v", e.Field, e.Value)
}

func invalid(field string, value any) error {
	return &ValidationError{Field: field, Value: value}
}

var (
	// ErrUnknownATIBase means the on-device ATI base bit pattern does not
	// match any known encoding; it is surfaced, never guessed.
	ErrUnknownATIBase = errors.New("iqs269: unrecognized ATI base bit pattern")

	// ErrATITimeout means the bounded wait for calibration completion
	// elapsed before the device finished.
	ErrATITimeout = errors.New("iqs269: timed out waiting for calibration to complete")

	// ErrATIStale means tuning data cannot be trusted because parameters
	// changed since the last successful initialization.
	ErrATIStale = errors.New("iqs269: calibration parameters changed since last initialization")

	// ErrATIBusy means calibration has not signaled completion yet.
	ErrATIBusy = errors.New("iqs269: calibration still in progress")

	// ErrCountsUnavailable means raw counts cannot be read while Hall
	// sensing is enabled.
	ErrCountsUnavailable = errors.New("iqs269: counts unavailable while hall sensing is enabled")

	// ErrHallPads means the rx-enable intersection of the Hall channel
	// pair selects neither the left nor the right pad.
	ErrHallPads = errors.New("iqs269: inconsistent hall pad selection")
)
