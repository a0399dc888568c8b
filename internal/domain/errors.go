package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration covers missing credentials, unknown models and
	// missing index files. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrConsistency covers index/metadata size mismatches and vector
	// dimensionality or model mismatches. Fatal at build or load time.
	ErrConsistency = errors.New("consistency error")
	// ErrRetrieval is a per-query failure in the retrieval phase.
	ErrRetrieval = errors.New("retrieval error")
	// ErrGeneration is a per-query failure in the generation phase.
	ErrGeneration = errors.New("generation error")
	// ErrInvalidArgument is a caller error such as k <= 0.
	ErrInvalidArgument = errors.New("invalid argument")
)

func ConfigurationErrorf(format string, args ...any) error {
	return wrapf(ErrConfiguration, format, args...)
}

func ConsistencyErrorf(format string, args ...any) error {
	return wrapf(ErrConsistency, format, args...)
}

func RetrievalErrorf(format string, args ...any) error {
	return wrapf(ErrRetrieval, format, args...)
}

func InvalidArgumentf(format string, args ...any) error {
	return wrapf(ErrInvalidArgument, format, args...)
}

func wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// GenerationErrorKind tells a caller whether retrying generation can help.
type GenerationErrorKind string

const (
	// GenerationUnavailable means the backend is misconfigured or refuses
	// the credentials/model; retrying will not help.
	GenerationUnavailable GenerationErrorKind = "unavailable"
	// GenerationTransient covers timeouts, rate limits, server errors and
	// malformed responses.
	GenerationTransient GenerationErrorKind = "transient"
)

type GenerationError struct {
	Kind       GenerationErrorKind
	Model      string
	StatusCode int
	Cause      error
}

func (e *GenerationError) Error() string {
	if e == nil {
		return ErrGeneration.Error()
	}
	msg := fmt.Sprintf("%s (kind=%s model=%s", ErrGeneration, e.Kind, e.Model)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is makes every GenerationError match ErrGeneration.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// Retryable reports whether the call may succeed when repeated.
func (e *GenerationError) Retryable() bool {
	return e != nil && e.Kind == GenerationTransient
}

// IsGenerationKind reports whether err is a GenerationError of the given kind.
func IsGenerationKind(err error, kind GenerationErrorKind) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Kind == kind
}
