package kernel

import "fmt"

// The continuation carrier.
//
// Each reactor body runs in its own goroutine, but at most one of the
// paired goroutines (engine, body) is runnable at any instant: the engine
// blocks on the out channel while the body runs, and the body blocks on the
// in channel while the engine runs. Between a suspension and the matching
// resume the body goroutine is parked with its entire stack intact, which
// is what preserves local state across awaits.

// outcomeKind classifies what a body did when control came back.
type outcomeKind int

const (
	// outcomeYielded: the body suspended at an await point.
	outcomeYielded outcomeKind = iota + 1
	// outcomeReturned: the body terminated with a value.
	outcomeReturned
	// outcomeFailed: the body terminated abnormally (error or panic).
	outcomeFailed
	// outcomeKilled: the body unwound in response to a kill.
	outcomeKilled
)

// awaitSpec carries the condition a suspending body awaits.
type awaitSpec struct {
	src         Source
	filter      Filter
	deferResume bool
}

// outcome is what a body hands back to the engine at each control transfer.
type outcome struct {
	kind  outcomeKind
	await awaitSpec // valid when kind == outcomeYielded
	value any       // valid when kind == outcomeReturned
	err   error     // valid when kind == outcomeFailed
}

// resumption is what the engine hands to a parked body.
type resumption struct {
	value any
	err   error
	kill  bool // unwind instead of resuming
}

// killUnwind is the private panic sentinel used to unwind a parked body.
type killUnwind struct{}

// coro is the channel pair carrying control between engine and body.
type coro struct {
	in  chan resumption
	out chan outcome
}

// startCoro launches the body goroutine and runs it to its first suspension
// or termination. Called with the engine goroutine as the active side.
func startCoro(body Body, rt *Runtime) (*coro, outcome) {
	c := &coro{
		in:  make(chan resumption),
		out: make(chan outcome),
	}
	rt.co = c
	go c.run(body, rt)
	return c, <-c.out
}

// resume delivers a resumption to the parked body and blocks until the next
// suspension or termination.
func (c *coro) resume(r resumption) outcome {
	c.in <- r
	return <-c.out
}

// run is the body trampoline. It converts returns, errors, panics, and kill
// unwinds into outcomes.
func (c *coro) run(body Body, rt *Runtime) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(killUnwind); ok {
				c.out <- outcome{kind: outcomeKilled}
				return
			}
			c.out <- outcome{
				kind: outcomeFailed,
				err:  fmt.Errorf("reactor body panicked: %v", r),
			}
		}
	}()

	v, err := body(rt)
	if err != nil {
		c.out <- outcome{kind: outcomeFailed, err: err}
		return
	}
	c.out <- outcome{kind: outcomeReturned, value: v}
}

// yield suspends the calling body until the engine resumes it. Runs on the
// body goroutine. A kill resumption unwinds via panic; the trampoline
// converts it to outcomeKilled.
func (c *coro) yield(spec awaitSpec) (any, error) {
	c.out <- outcome{kind: outcomeYielded, await: spec}
	r := <-c.in
	if r.kill {
		panic(killUnwind{})
	}
	return r.value, r.err
}
