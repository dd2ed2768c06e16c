package kernel

// Runtime is the kernel surface handed to a running reactor body.
//
// All primitives except Await and Call are non-blocking and take effect
// within the same activation. They may touch engine state directly: while a
// body runs, the engine goroutine is parked, so there is no concurrent
// access to defend against.
//
// A Runtime is only valid on the body goroutine it was created for, between
// entry and return. Bodies must not retain it past termination or hand it to
// other goroutines.
type Runtime struct {
	app   *App
	chain string
	self  ID
	co    *coro
}

// Self returns the id of the reactor this body belongs to.
func (rt *Runtime) Self() ID { return rt.self }

// Create allocates a fresh reactor in the ready state. The reactor is not
// scheduled; use Spawn, Call, or a link edge to activate it.
func (rt *Runtime) Create(body Body) ID {
	return rt.app.reg.create(body).id
}

// Spawn enqueues the reactor as a new activation and returns immediately;
// caller and spawned reactor are concurrent within the same chain, and their
// relative order is unspecified.
func (rt *Runtime) Spawn(id ID) error {
	return rt.app.spawn(id)
}

// Call spawns the reactor and suspends until it terminates, resuming with
// its terminal value once the entire sub-chain rooted at it has drained.
// Failure and kill of the callee surface as the returned error.
func (rt *Runtime) Call(id ID) (any, error) {
	if err := rt.app.spawn(id); err != nil {
		return nil, err
	}
	return rt.co.yield(awaitSpec{src: ReactorSource(id), deferResume: true})
}

// Kill removes the reactor: it leaves all queues, its edges are dropped, and
// any reactor awaiting it resumes with ErrKilled. Killing oneself marks the
// body for unwinding at its next suspension or return point. Killing a dead
// reactor is an InvalidTransitionError.
func (rt *Runtime) Kill(id ID) error {
	return rt.app.kill(rt.chain, id, rt.self)
}

// Link adds a permanent link edge owned by the calling reactor: the edge is
// removed when this reactor dies, or explicitly via Unlink.
func (rt *Runtime) Link(src Source, dst ID, filter ...Filter) (LinkHandle, error) {
	return rt.app.addLink(src, dst, first(filter), rt.self)
}

// LinkFunc links an anonymous body: the body is auto-created as a fresh
// reactor and becomes the link target.
func (rt *Runtime) LinkFunc(src Source, body Body, filter ...Filter) (LinkHandle, error) {
	dst := rt.app.reg.create(body).id
	return rt.app.addLink(src, dst, first(filter), rt.self)
}

// Unlink removes a link edge. No-op if the edge is already gone. The
// currently propagating fan-out is never affected: the engine snapshots
// edge sets at the moment of firing.
func (rt *Runtime) Unlink(h LinkHandle) {
	rt.app.graph.removeLink(h)
}

// Await suspends the caller until the source fires a value the filter
// admits, and returns that value.
//
// Awaiting a reactor that already settled does not suspend: the terminal
// value (or failure, or ErrKilled) is returned synchronously. Awaiting an
// unknown reactor is an error.
func (rt *Runtime) Await(src Source, filter ...Filter) (any, error) {
	if !src.IsEvent() {
		rec, err := rt.app.reg.lookup(src.Reactor())
		if err != nil {
			return nil, err
		}
		if rec.state == StateDead {
			return settledResult(rec)
		}
	}
	return rt.co.yield(awaitSpec{src: src, filter: first(filter)})
}

// Post fires a named event within the current chain: every edge with that
// source is enqueued immediately. An event nothing listens to is silently
// ignored.
func (rt *Runtime) Post(event string, payload any) {
	rt.app.fireEvent(rt.chain, event, payload)
}

// CurrentValue returns the most recent terminal value of the reactor
// without suspending. It is nil for a reactor that has not terminated since
// its last trigger.
func (rt *Runtime) CurrentValue(id ID) (any, error) {
	rec, err := rt.app.reg.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.current, nil
}

// settledResult maps a tombstone to what an awaiter observes.
func settledResult(rec *reactor) (any, error) {
	switch rec.cause {
	case causeReturned:
		return rec.current, nil
	case causeFailed:
		return nil, &FailureError{Reactor: rec.id, Err: rec.failure}
	default:
		return nil, ErrKilled
	}
}

// first unpacks the optional trailing filter argument.
func first(filters []Filter) Filter {
	if len(filters) == 0 {
		return nil
	}
	return filters[0]
}
