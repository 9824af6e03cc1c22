package booking

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrAlreadyBooked   = errors.New("already booked")
	ErrSoldOut         = errors.New("sold out")
	ErrBookingNotFound = errors.New("booking not found")
	// ErrServer marks unexpected ledger or counter failures. The caller decides on retries.
	ErrServer = errors.New("server error")
)

// Outcome is the terminal state of a booking attempt.
type Outcome string

const (
	OutcomeBooked        Outcome = "booked"
	OutcomeAlreadyBooked Outcome = "already_booked"
	OutcomeSoldOut       Outcome = "sold_out"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeServerError   Outcome = "server_error"
)

// OutcomeOf classifies the error returned by AttemptBooking.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeBooked
	case errors.Is(err, ErrAlreadyBooked):
		return OutcomeAlreadyBooked
	case errors.Is(err, ErrSoldOut):
		return OutcomeSoldOut
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrBookingNotFound):
		return OutcomeNotFound
	default:
		return OutcomeServerError
	}
}

func serverError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrServer, step, err)
}
