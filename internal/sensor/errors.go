package sensor

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownType      = errors.New("sensor: unknown sensor type")
	ErrNotSampled       = errors.New("sensor: type has no sample stream")
	ErrPayloadLength    = errors.New("sensor: unexpected payload length")
	ErrMissingScalar    = errors.New("sensor: scalar not yet known")
	ErrNoPositions      = errors.New("sensor: pressure positions not yet known")
	ErrNoAxisConvention = errors.New("sensor: no axis convention for type")
	ErrInvalidValue     = errors.New("sensor: invalid value")
)

// DecodeError is a recoverable failure to decode one sensor payload.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sensor: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(t Type, err error) error {
	return &DecodeError{Type: t, Err: err}
}
