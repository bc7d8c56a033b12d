package core

import "errors"

// Errors surfaced by the manager and by bus controllers.
var (
	ErrQueueFull       = errors.New("twi: transaction queue full")
	ErrNoMemory        = errors.New("twi: scratch memory exhausted")
	ErrInvalidTransfer = errors.New("twi: invalid transfer")
	ErrNotInitialized  = errors.New("twi: manager not initialized")
	ErrInit            = errors.New("twi: init failed")

	// Bus errors, reported by controllers through Begin or the completion handler.
	ErrBusBusy        = errors.New("twi: bus busy")
	ErrBusNACK        = errors.New("twi: address or data NACK")
	ErrBusArbitration = errors.New("twi: arbitration lost")
	ErrBusTimeout     = errors.New("twi: bus timeout")
	ErrBusFault       = errors.New("twi: bus fault")
)

// wrapError attaches a cause to one of the sentinels above without fmt.
type wrapError struct {
	kind  error
	cause error
}

func (e *wrapError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *wrapError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Wrap returns an error that matches both kind and cause with errors.Is.
// Returns kind when cause is nil.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapError{kind: kind, cause: cause}
}

// IsBusError reports whether err came from the bus rather than the manager.
func IsBusError(err error) bool {
	return errors.Is(err, ErrBusBusy) ||
		errors.Is(err, ErrBusNACK) ||
		errors.Is(err, ErrBusArbitration) ||
		errors.Is(err, ErrBusTimeout) ||
		errors.Is(err, ErrBusFault)
}

// mustHold halts on a violated caller contract.
func mustHold(cond bool, msg string) {
	if !cond {
		panic("twi: " + msg)
	}
}
