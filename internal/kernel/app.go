package kernel

import (
	"log/slog"

	"github.com/roach88/quiesce/internal/trace"
)

// AppState enumerates the lifecycle of an application.
type AppState int

const (
	// AppStarting: the starting chain (the root reactor's first run) has
	// not yet drained.
	AppStarting AppState = iota + 1
	// AppReady: the engine is idle, awaiting the next external event.
	AppReady
	// AppTerminated: the root reactor is dead.
	AppTerminated
)

// String implements fmt.Stringer.
func (s AppState) String() string {
	switch s {
	case AppStarting:
		return "starting"
	case AppReady:
		return "ready"
	case AppTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DefaultMaxActivations is the default per-chain activation budget. It
// bounds runaway chains (bodies that spin without suspending); see
// ChainLimitError.
const DefaultMaxActivations = 10000

// App is one application instance: a root reactor plus the engine's work
// queues and dependency graph. Multiple applications may coexist; there is
// no hidden global state.
//
// An App is not safe for concurrent use. Step, Spawn, and Kill each drive a
// full propagation chain synchronously and must not overlap.
type App struct {
	reg      *registry
	graph    *graph
	queue    *workQueue
	clock    *Clock
	tokens   TokenGenerator
	recorder trace.Recorder

	maxActivations int

	root  ID
	state AppState
}

// Option configures an App at Start.
type Option func(*App)

// WithMaxActivations sets the per-chain activation budget.
//
// Default: 10000 (DefaultMaxActivations). Use a small value to test budget
// enforcement, a larger one for graphs with very wide fan-out.
func WithMaxActivations(n int) Option {
	return func(a *App) { a.maxActivations = n }
}

// WithRecorder attaches a trace recorder. The kernel runs identically
// without one; recording is pure observability.
func WithRecorder(r trace.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithTokens overrides the chain token generator (for deterministic tests).
func WithTokens(g TokenGenerator) Option {
	return func(a *App) { a.tokens = g }
}

// Start creates an application around a root reactor and runs the starting
// chain to quiescence. The returned App is in state ready, or terminated if
// the root ran to completion without suspending.
func Start(root Body, opts ...Option) (*App, error) {
	a := &App{
		reg:            newRegistry(),
		graph:          newGraph(),
		queue:          newWorkQueue(),
		clock:          NewClock(),
		tokens:         UUIDv7Generator{},
		maxActivations: DefaultMaxActivations,
		state:          AppStarting,
	}
	for _, opt := range opts {
		opt(a)
	}

	rec := a.reg.create(root)
	a.root = rec.id

	chain := a.tokens.Generate()
	a.record(chain, trace.KindChain, 0, "@start", "")
	slog.Info("application starting", "chain", chain, "root", a.root)

	a.queue.push(activation{kind: actStart, reactor: a.root})
	err := a.drain(chain)
	a.refreshState()
	return a, err
}

// Step admits one external event and drives exactly one full propagation
// chain, returning when the activation queue has drained. Step never blocks
// on external I/O.
func (a *App) Step(event string, payload any) (AppState, error) {
	if a.state == AppTerminated {
		return a.state, ErrTerminated
	}
	chain := a.tokens.Generate()
	a.record(chain, trace.KindChain, 0, event, "")
	slog.Debug("chain begin", "chain", chain, "event", event)

	a.fireEvent(chain, event, payload)
	err := a.drain(chain)
	a.refreshState()
	return a.state, err
}

// State reports the application lifecycle state.
func (a *App) State() AppState { return a.state }

// Root returns the root reactor's id.
func (a *App) Root() ID { return a.root }

// RootResult returns the root reactor's terminal value or terminal error
// (failure or kill). Both are zero while the root is still live.
func (a *App) RootResult() (any, error) {
	rec, err := a.reg.lookup(a.root)
	if err != nil {
		return nil, err
	}
	if rec.state != StateDead {
		return nil, nil
	}
	return settledResult(rec)
}

// Create allocates a reactor from the embedding environment. The reactor is
// not scheduled.
func (a *App) Create(body Body) ID {
	return a.reg.create(body).id
}

// Spawn enqueues a reactor from the embedding environment and drives the
// resulting chain to quiescence.
func (a *App) Spawn(id ID) error {
	if err := a.spawn(id); err != nil {
		return err
	}
	chain := a.tokens.Generate()
	a.record(chain, trace.KindChain, 0, "@spawn", "")
	err := a.drain(chain)
	a.refreshState()
	return err
}

// Kill removes a reactor from the embedding environment and drives any
// resulting awaiter resumes to quiescence.
func (a *App) Kill(id ID) error {
	chain := a.tokens.Generate()
	a.record(chain, trace.KindChain, 0, "@kill", "")
	if err := a.kill(chain, id, 0); err != nil {
		return err
	}
	err := a.drain(chain)
	a.refreshState()
	return err
}

// Link adds an application-owned permanent link edge: it persists until
// explicitly unlinked or its target dies.
func (a *App) Link(src Source, dst ID, filter ...Filter) (LinkHandle, error) {
	return a.addLink(src, dst, first(filter), 0)
}

// LinkFunc links an anonymous body, auto-created as a fresh reactor.
func (a *App) LinkFunc(src Source, body Body, filter ...Filter) (LinkHandle, error) {
	dst := a.reg.create(body).id
	return a.addLink(src, dst, first(filter), 0)
}

// Unlink removes a link edge. No-op if absent.
func (a *App) Unlink(h LinkHandle) {
	a.graph.removeLink(h)
}

// CurrentValue returns a reactor's most recent terminal value.
func (a *App) CurrentValue(id ID) (any, error) {
	rec, err := a.reg.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.current, nil
}

// LiveReactors returns the number of non-dead reactors. Introspection and
// tests only.
func (a *App) LiveReactors() int { return a.reg.live() }

// EdgeCount returns the number of edges in the graph. Introspection and
// tests only.
func (a *App) EdgeCount() int { return a.graph.edgeCount() }

// spawn validates and enqueues a start activation. Shared by Runtime.Spawn,
// Runtime.Call, and App.Spawn.
func (a *App) spawn(id ID) error {
	rec, err := a.reg.lookup(id)
	if err != nil {
		return err
	}
	if rec.state != StateReady {
		return &InvalidTransitionError{Reactor: id, From: rec.state, Op: "spawn"}
	}
	a.queue.push(activation{kind: actStart, reactor: id})
	return nil
}

// addLink validates endpoints and adds a link edge. Idempotent on (src,dst).
func (a *App) addLink(src Source, dst ID, filter Filter, owner ID) (LinkHandle, error) {
	if !src.IsEvent() {
		srcRec, err := a.reg.lookup(src.Reactor())
		if err != nil {
			return LinkHandle{}, err
		}
		if srcRec.state == StateDead {
			return LinkHandle{}, &InvalidTransitionError{Reactor: srcRec.id, From: StateDead, Op: "link"}
		}
	}
	rec, err := a.reg.lookup(dst)
	if err != nil {
		return LinkHandle{}, err
	}
	if rec.state == StateDead {
		return LinkHandle{}, &InvalidTransitionError{Reactor: dst, From: StateDead, Op: "link"}
	}
	h, _ := a.graph.addLink(src, dst, filter, owner)
	return h, nil
}

// refreshState recomputes the app state after a chain drains.
func (a *App) refreshState() {
	rec, err := a.reg.lookup(a.root)
	if err == nil && rec.state == StateDead {
		if a.state != AppTerminated {
			slog.Info("application terminated", "root", a.root)
		}
		a.state = AppTerminated
		return
	}
	a.state = AppReady
}

// NextEvent is the event-source callback contract for loop mode: it returns
// the next external event, or ok=false at end of stream. It must be
// synchronous to the driver.
type NextEvent func() (name string, payload any, ok bool)

// Loop runs an application in loop mode: start the root, then repeatedly
// pull events from next and feed each to Step, until the root is dead or the
// stream ends. Loop is definitionally Start plus a while-loop over Step.
//
// Returns the root reactor's terminal value (nil if the stream ended while
// the root was still live).
func Loop(next NextEvent, root Body, opts ...Option) (any, error) {
	app, err := Start(root, opts...)
	if err != nil {
		return nil, err
	}
	for app.State() != AppTerminated {
		name, payload, ok := next()
		if !ok {
			break
		}
		if _, err := app.Step(name, payload); err != nil {
			return nil, err
		}
	}
	return app.RootResult()
}
