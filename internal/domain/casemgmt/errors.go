package casemgmt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound means the case or appointment does not exist or is not
	// owned by the requesting clinic or patient.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyCancelled is returned when a patient cancels an appointment
	// that is already cancelled.
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
)

// ValidationError collects every problem found in a request. Nothing is
// written when one is returned.
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string][]string)}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = append(e.Fields[field], msg)
}

// ErrOrNil returns e when it holds at least one message.
func (e *ValidationError) ErrOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Messages returns all messages ordered by field name.
func (e *ValidationError) Messages() []string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		out = append(out, e.Fields[f]...)
	}
	return out
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

func invalid(field, msg string) *ValidationError {
	v := NewValidationError()
	v.Add(field, msg)
	return v
}

// StorageError wraps a database failure. The surrounding transaction has
// been rolled back when a service method returns one.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// wrapStorage leaves domain errors alone and wraps everything else.
func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var se *StorageError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyCancelled),
		errors.As(err, &ve), errors.As(err, &se):
		return err
	}
	return &StorageError{Op: op, Err: err}
}
