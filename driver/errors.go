package driver

import (
	"errors"
	"fmt"
)

// Server error codes that terminate a change feed without a resume attempt.
const (
	CodeInterrupted        = 11601
	CodeCappedPositionLost = 136
	CodeCursorKilled       = 237
)

// CommandError is a failure reported by the server in a command reply.
type CommandError struct {
	Code    int32
	Message string
	Name    string
}

func (e CommandError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("command failed (%d): %s", e.Code, e.Message)
}

// NetworkError is a transport-level failure reported by the lower layer.
type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	var ne NetworkError
	return errors.As(err, &ne)
}
