package kernel

import (
	"errors"
	"fmt"
)

// ErrKilled is delivered to awaiters of a killed reactor. It is
// distinguishable from a failure: the awaited reactor did nothing wrong, it
// was removed.
var ErrKilled = errors.New("reactor killed")

// ErrTerminated is returned by Step on an application whose root reactor is
// dead.
var ErrTerminated = errors.New("application terminated")

// FailureError reports that a reactor body terminated abnormally. It is
// delivered to every reactor awaiting the failed reactor; link-edge
// dependents are not triggered on failure.
type FailureError struct {
	Reactor ID
	Err     error
}

// Error implements the error interface.
func (e *FailureError) Error() string {
	return fmt.Sprintf("reactor %d failed: %v", e.Reactor, e.Err)
}

// Unwrap exposes the inner error for errors.Is/As.
func (e *FailureError) Unwrap() error { return e.Err }

// InvalidTransitionError reports an illegal reactor state transition, or an
// operation (spawn, link, kill) attempted on a dead reactor. Await on a dead
// reactor is not refused: it returns the reactor's settled result.
type InvalidTransitionError struct {
	Reactor ID
	From    State
	To      State
	Op      string // operation that was refused, when applicable
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("reactor %d: %s not permitted in state %s", e.Reactor, e.Op, e.From)
	}
	return fmt.Sprintf("reactor %d: illegal transition %s -> %s", e.Reactor, e.From, e.To)
}

// UnknownReactorError reports a reactor id that was never allocated.
type UnknownReactorError struct {
	Reactor ID
}

// Error implements the error interface.
func (e *UnknownReactorError) Error() string {
	return fmt.Sprintf("unknown reactor %d", e.Reactor)
}

// ChainLimitError reports a propagation chain that exceeded the activation
// budget without draining. This is the watchdog for bodies that spin
// without suspending; the chain is abandoned and its queue discarded.
type ChainLimitError struct {
	Chain       string
	Activations int
	Limit       int
}

// Error implements the error interface.
func (e *ChainLimitError) Error() string {
	return fmt.Sprintf("chain %s exceeded activation budget: %d activations > %d limit",
		e.Chain, e.Activations, e.Limit)
}

// IsKilled reports whether err is a kill signal.
func IsKilled(err error) bool {
	return errors.Is(err, ErrKilled)
}

// IsFailure reports whether err is a reactor failure, wrapped or not.
func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsChainLimit reports whether err is a ChainLimitError.
func IsChainLimit(err error) bool {
	var ce *ChainLimitError
	return errors.As(err, &ce)
}
