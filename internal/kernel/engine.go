package kernel

import (
	"fmt"
	"log/slog"

	"github.com/roach88/quiesce/internal/trace"
)

// drain runs the current propagation chain to quiescence: pop one
// activation, run it to its next suspension or termination, repeat until
// both queues are empty.
//
// Chosen activations run atomically; everything a body enqueues (spawn,
// post, termination fan-out) lands behind the work already pending, so every
// enqueued activation is eventually run within the same chain.
//
// The per-chain activation budget is the termination watchdog: a chain that
// exceeds it is abandoned, its queue discarded, and ChainLimitError
// returned.
func (a *App) drain(chain string) error {
	used := 0
	for {
		act, ok := a.queue.pop()
		if !ok {
			return nil
		}
		used++
		if used > a.maxActivations {
			a.queue.clear()
			err := &ChainLimitError{Chain: chain, Activations: used, Limit: a.maxActivations}
			slog.Error("chain abandoned: activation budget exceeded",
				"chain", chain,
				"activations", used,
				"limit", a.maxActivations,
			)
			return err
		}
		a.runActivation(chain, act)
	}
}

// runActivation executes one pending activation. Activations for reactors
// that died while queued are skipped, and a start is skipped for a reactor
// that is not ready when it is popped. A reactor that re-armed after
// returning is ready again, so a second queued start runs it again.
func (a *App) runActivation(chain string, act activation) {
	rec, err := a.reg.lookup(act.reactor)
	if err != nil || rec.state == StateDead {
		return
	}

	switch act.kind {
	case actStart:
		if rec.state != StateReady {
			// Already triggered earlier in the chain, or suspended.
			return
		}
		a.mustMark(rec, StateRunning)
		rec.current = nil // reset on re-trigger
		a.record(chain, trace.KindStart, rec.id, "", "")
		slog.Debug("reactor start", "chain", chain, "reactor", rec.id)

		rt := &Runtime{app: a, chain: chain, self: rec.id}
		co, out := startCoro(rec.body, rt)
		rec.co = co
		rec.rt = rt
		a.settle(chain, rec, out)

	case actResume:
		if rec.state != StateSuspended {
			return
		}
		a.mustMark(rec, StateRunning)
		rec.awaitEdge = nil
		rec.rt.chain = chain // resumes may happen chains after the start
		a.record(chain, trace.KindResume, rec.id, "", "")
		slog.Debug("reactor resume", "chain", chain, "reactor", rec.id)

		out := rec.co.resume(resumption{value: act.value, err: act.err})
		a.settle(chain, rec, out)
	}
}

// settle handles the outcome of one control transfer into a body.
func (a *App) settle(chain string, rec *reactor, out outcome) {
	switch out.kind {
	case outcomeYielded:
		if rec.killReq {
			// Self-killed, then tried to suspend: unwind now. A body that
			// recovers the unwind still finishes as killed.
			rec.co.resume(resumption{kill: true})
			a.settleKilled(chain, rec)
			return
		}
		a.mustMark(rec, StateSuspended)
		rec.awaitEdge = a.graph.addAwait(out.await.src, rec.id, out.await.filter, out.await.deferResume)
		a.record(chain, trace.KindSuspend, rec.id, out.await.src.String(), "")
		slog.Debug("reactor suspend", "chain", chain, "reactor", rec.id, "on", out.await.src.String())

	case outcomeReturned:
		if rec.killReq {
			a.settleKilled(chain, rec)
			return
		}
		a.settleReturned(chain, rec, out.value)

	case outcomeFailed:
		slog.Error("reactor body failed",
			"chain", chain,
			"reactor", rec.id,
			"error", out.err,
		)
		a.settleFailed(chain, rec, out.err)

	case outcomeKilled:
		a.settleKilled(chain, rec)
	}
}

// settleReturned finishes a normally terminated reactor: fan its terminal
// value out to link dependents and awaiters, then either re-arm it (still
// targeted by link edges) or destroy it.
func (a *App) settleReturned(chain string, rec *reactor, v any) {
	a.mustMark(rec, StateZombie)
	rec.current = v
	a.record(chain, trace.KindReturn, rec.id, "", detail(v))
	slog.Debug("reactor return", "chain", chain, "reactor", rec.id)

	for _, e := range a.graph.fanout(ReactorSource(rec.id)) {
		switch e.kind {
		case edgeLink:
			if admit(e.filter, v) {
				a.queue.push(activation{kind: actStart, reactor: e.target})
			}
		case edgeAwait:
			a.graph.removeEdge(e)
			if admit(e.filter, v) {
				a.enqueueResume(e, v, nil)
			} else {
				// The source settles exactly once; a filter that rejects
				// the terminal value can never be satisfied. The awaiter
				// resumes as if the source were gone.
				a.enqueueResume(e, nil, ErrKilled)
			}
		}
	}

	if a.graph.inboundLinks(rec.id) > 0 {
		// Still targeted by permanent links: back to ready for the next
		// trigger. The terminal value stays readable until then.
		a.mustMark(rec, StateReady)
		rec.co = nil
		rec.rt = nil
		return
	}
	a.graph.dropReactor(rec.id)
	a.reg.destroy(rec, causeReturned)
}

// settleFailed isolates a failed reactor: awaiters receive the failure as
// data, link dependents are not triggered, and the reactor dies regardless
// of inbound links. The engine itself continues the chain.
func (a *App) settleFailed(chain string, rec *reactor, inner error) {
	a.mustMark(rec, StateZombie)
	rec.failure = inner
	a.record(chain, trace.KindFailure, rec.id, "", inner.Error())

	fail := &FailureError{Reactor: rec.id, Err: inner}
	for _, e := range a.graph.fanout(ReactorSource(rec.id)) {
		if e.kind == edgeAwait {
			a.graph.removeEdge(e)
			a.enqueueResume(e, nil, fail)
		}
	}

	a.graph.dropReactor(rec.id)
	a.reg.destroy(rec, causeFailed)
}

// settleKilled finishes a killed reactor: awaiters receive ErrKilled, link
// dependents are not triggered, edges are removed immediately.
func (a *App) settleKilled(chain string, rec *reactor) {
	a.mustMark(rec, StateZombie)
	a.record(chain, trace.KindKilled, rec.id, "", "")
	slog.Debug("reactor killed", "chain", chain, "reactor", rec.id)

	for _, e := range a.graph.fanout(ReactorSource(rec.id)) {
		if e.kind == edgeAwait {
			a.graph.removeEdge(e)
			a.enqueueResume(e, nil, ErrKilled)
		}
	}

	a.graph.dropReactor(rec.id)
	a.reg.destroy(rec, causeKilled)
}

// kill implements the kill primitive for both bodies and the embedder.
// killer is the id of the running reactor, or 0 when the embedder kills.
func (a *App) kill(chain string, target, killer ID) error {
	rec, err := a.reg.lookup(target)
	if err != nil {
		return err
	}
	if rec.state == StateDead {
		return &InvalidTransitionError{Reactor: target, From: StateDead, Op: "kill"}
	}
	if target == killer {
		// Self-kill: unwinds at the next suspension or return point.
		rec.killReq = true
		return nil
	}

	switch rec.state {
	case StateReady:
		// Any queued start activation is skipped once the record is dead.
		a.settleKilled(chain, rec)
		return nil
	case StateSuspended:
		if rec.awaitEdge != nil {
			a.graph.removeEdge(rec.awaitEdge)
			rec.awaitEdge = nil
		}
		a.mustMark(rec, StateRunning)
		rec.co.resume(resumption{kill: true})
		a.settleKilled(chain, rec)
		return nil
	default:
		return &InvalidTransitionError{Reactor: target, From: rec.state, Op: "kill"}
	}
}

// fireEvent enqueues every edge whose source is the named event. Link
// targets start fresh; await edges are consumed and their reactors resumed
// with the payload. An event no edge matches is silently ignored.
func (a *App) fireEvent(chain, name string, payload any) {
	src := EventSource(name)
	a.record(chain, trace.KindPost, 0, src.Event(), detail(payload))
	for _, e := range a.graph.fanout(src) {
		switch e.kind {
		case edgeLink:
			if admit(e.filter, payload) {
				a.queue.push(activation{kind: actStart, reactor: e.target})
			}
		case edgeAwait:
			if admit(e.filter, payload) {
				a.graph.removeEdge(e)
				a.enqueueResume(e, payload, nil)
			}
			// A rejected await edge stays armed for the next firing.
		}
	}
}

// enqueueResume schedules the resume carried by a consumed await edge.
func (a *App) enqueueResume(e *edge, v any, err error) {
	act := activation{kind: actResume, reactor: e.target, value: v, err: err}
	if e.deferResume {
		a.queue.pushDeferred(act)
		return
	}
	a.queue.push(act)
}

// mustMark performs a state transition the engine knows to be legal. A
// refusal here is a kernel bug, not a user error, and is not survivable.
func (a *App) mustMark(rec *reactor, to State) {
	if err := a.reg.mark(rec, to); err != nil {
		panic(err)
	}
}

// record emits a trace record if a recorder is configured.
func (a *App) record(chain, kind string, reactor ID, event, det string) {
	if a.recorder == nil {
		return
	}
	a.recorder.Record(trace.Record{
		Chain:   chain,
		Seq:     a.clock.Next(),
		Kind:    kind,
		Reactor: uint64(reactor),
		Event:   event,
		Detail:  det,
	})
}

// admit applies an optional filter to a fired value.
func admit(f Filter, v any) bool {
	return f == nil || f(v)
}

// detail renders a payload or terminal value for the trace.
func detail(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
