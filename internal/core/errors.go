package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for lifecycle operations. Operation failures wrap one of
// these in an *OpError so callers can match with errors.Is.
var (
	ErrInterfaceUnavailable = errors.New("interface unavailable")
	ErrEngineStartFailed    = errors.New("engine start failed")
	ErrEngineNotReady       = errors.New("engine not ready")
	ErrSocketProtectFailed  = errors.New("socket protect failed")
	ErrEngineStopFailed     = errors.New("engine stop failed")
	ErrOperationCancelled   = errors.New("operation cancelled")
	ErrInvalidCommand       = errors.New("invalid command")
	ErrTerminated           = errors.New("controller terminated")
	ErrUnsupported          = errors.New("not supported on this platform")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInterfaceUnavailable, "InterfaceUnavailable"},
	{ErrEngineStartFailed, "EngineStartFailed"},
	{ErrEngineNotReady, "EngineNotReady"},
	{ErrSocketProtectFailed, "SocketProtectFailed"},
	{ErrEngineStopFailed, "EngineStopFailed"},
	{ErrOperationCancelled, "OperationCancelled"},
	{ErrInvalidCommand, "InvalidCommand"},
	{ErrTerminated, "Terminated"},
}

// OpError describes a failed lifecycle operation.
type OpError struct {
	Op   string // "enable", "disable", "exit"
	Kind error  // one of the Err* sentinels above
	Err  error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ErrorCode returns the taxonomy name of err, or "Error" when err matches no sentinel.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Error"
}

// StatusText renders err as a relay status string: "<Code>: <detail>".
func StatusText(err error) string {
	return ErrorCode(err) + ": " + err.Error()
}
