package lifecycle

import (
	"errors"
	"fmt"

	"github.com/jogardn/office-meals/pkg/models"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrNotEditable       = errors.New("order can no longer be edited")
	ErrLineOutOfRange    = errors.New("order line index out of range")
)

// ValidationError is returned before anything is sent to the remote store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func illegal(from, to models.OrderStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
