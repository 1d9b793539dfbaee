package segmentpower

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCategory     = errors.New("unknown bike category")
	ErrInvalidWeight       = errors.New("weight must be greater than zero")
	ErrNonPositiveSpeed    = errors.New("speed must be greater than zero")
	ErrNonPositiveDistance = errors.New("distance must be greater than zero")
	ErrNonPositiveTime     = errors.New("time must be greater than zero")
	ErrNonPositivePower    = errors.New("power must be greater than zero")
	ErrNonFinite           = errors.New("value is not a finite number")
	ErrOutOfRange          = errors.New("result is outside the representable range")
	ErrInvalidStep         = errors.New("invalid plan step")
)

// InputError reports a form value outside its accepted bounds.
type InputError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s %v is outside [%v, %v]", e.Field, e.Value, e.Min, e.Max)
}

// RangeError reports an improvement request outside the window allowed for
// the estimated segment time.
type RangeError struct {
	ImprovementMinutes float64
	Min                float64
	Max                float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("improvement of %v minutes is outside [%v, %v]", e.ImprovementMinutes, e.Min, e.Max)
}
