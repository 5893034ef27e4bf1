package spannerorm

import (
	"errors"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"
)

// Sentinel errors returned by client operations. Wrap-aware callers should
// test them with errors.Is.
var (
	// ErrNotFound is returned when a row looked up by key does not exist
	ErrNotFound = errors.New("row not found")

	// ErrAlreadyExists is returned when an insert collides with an existing key
	ErrAlreadyExists = errors.New("row already exists")

	// ErrNotRegistered is returned when a model has not been added to the registry
	ErrNotRegistered = errors.New("model not registered")

	// ErrValidation is returned when a model, key or condition fails validation
	ErrValidation = errors.New("validation failed")
)

// IsNotFound reports whether err is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// validationError builds an ErrValidation with a formatted detail message
func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notRegisteredError builds an ErrNotRegistered naming the offending type
func notRegisteredError(name string) error {
	return fmt.Errorf("%w: %s", ErrNotRegistered, name)
}

// mapSpannerError translates Spanner gRPC status codes into the package
// sentinels so callers do not need to inspect grpc codes themselves.
func mapSpannerError(err error) error {
	if err == nil {
		return nil
	}
	switch spanner.ErrCode(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	default:
		return err
	}
}
