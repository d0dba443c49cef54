package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the repositories and the session core
var (
	// Storage errors
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
