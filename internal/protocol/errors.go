package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTransport          = errors.New("protocol: transport failure")
	ErrProtocol           = errors.New("protocol: protocol violation")
	ErrUnknownCommand     = errors.New("protocol: unknown command")
	ErrSizeLimit          = errors.New("protocol: size limit exceeded")
	ErrTextEncoding       = errors.New("protocol: invalid text encoding")
	ErrTimeout            = errors.New("protocol: timed out waiting for event")
	ErrRegistrationFailed = errors.New("protocol: event registration failed")
)

// UnknownCommandError reports a command the daemon rejected by name.
type UnknownCommandError struct {
	Command string
}

func (e UnknownCommandError) Error() string {
	return fmt.Sprintf("protocol: unknown command %q", e.Command)
}

func (e UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// RegistrationError reports an EventUnknown reply to a (un)registration.
type RegistrationError struct {
	Event      string
	Unregister bool
}

func (e RegistrationError) Error() string {
	if e.Unregister {
		return fmt.Sprintf("protocol: event deregistration failed for %q", e.Event)
	}
	return fmt.Sprintf("protocol: event registration failed for %q", e.Event)
}

func (e RegistrationError) Is(target error) bool {
	return target == ErrRegistrationFailed
}

// Transport wraps an I/O failure from the underlying stream.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Kind returns a short label for the error kind of err, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrRegistrationFailed):
		return "registration"
	case errors.Is(err, ErrSizeLimit):
		return "size_limit"
	case errors.Is(err, ErrTextEncoding):
		return "text_encoding"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
