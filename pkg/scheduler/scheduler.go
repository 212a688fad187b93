package scheduler

import (
	"errors"
	"fmt"
	"math"

	"github.com/absmach/cohort/pkg/fl"
)

var ErrInvalidFraction = errors.New("fraction must be within [0, 1]")

// Request describes how many participants a phase needs.
type Request struct {
	Fraction     float64
	MinRequired  int
	MinAvailable int
}

// Selector picks the participants involved in one phase of a round.
type Selector interface {
	Select(available []string, req Request) ([]string, error)
}

// Target returns max(round(fraction*available), minRequired) clamped to
// available. Rounding is half-up.
func Target(available int, fraction float64, minRequired int) int {
	n := int(math.Floor(fraction*float64(available) + 0.5))
	n = max(n, minRequired, 0)

	return min(n, available)
}

// Check validates req against the number of available participants.
func Check(available int, req Request) error {
	if req.Fraction < 0 || req.Fraction > 1 || math.IsNaN(req.Fraction) {
		return fmt.Errorf("%w: %v", ErrInvalidFraction, req.Fraction)
	}
	if available < req.MinAvailable {
		return fmt.Errorf("%w: %d registered, %d required", fl.ErrInsufficientParticipants, available, req.MinAvailable)
	}

	return nil
}
