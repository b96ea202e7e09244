package config

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every configuration error returned by this package.
var ErrConfig = errors.New("configuration error")

// Error describes a malformed or missing configuration value.
type Error struct {
	// Key is the environment variable or cluster the problem relates to
	Key    string
	Reason string
}

func newError(key, reason string) *Error {
	return &Error{Key: key, Reason: reason}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Key, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) hold for every *Error.
func (e *Error) Is(target error) bool {
	return target == ErrConfig
}
