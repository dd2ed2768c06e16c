package harness

import (
	"fmt"

	"github.com/roach88/quiesce/internal/kernel"
	"github.com/roach88/quiesce/internal/trace"
)

// Stimulus is one external event fed to the application.
type Stimulus struct {
	Event   string
	Payload any
}

// Scenario is a conformance test: a root body, optional kernel options, and
// the stimuli to step through. Chain tokens are always "chain-1",
// "chain-2", ... so traces are stable across runs.
type Scenario struct {
	Name    string
	Root    kernel.Body
	Options []kernel.Option
	Stimuli []Stimulus
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Trace contains every record the kernel emitted, in order.
	Trace []trace.Record

	// Final is the application state after the last stimulus.
	Final kernel.AppState

	// RootValue and RootErr hold the root reactor's terminal result, when
	// it terminated.
	RootValue any
	RootErr   error
}

// Run executes a scenario against a fresh application.
//
// Stimuli after termination are dropped rather than failing: scenarios may
// deliberately end with a halt event mid-sequence.
func Run(s *Scenario) (*Result, error) {
	if s.Root == nil {
		return nil, fmt.Errorf("scenario %q: root body is required", s.Name)
	}

	mem := trace.NewMemory()
	opts := append([]kernel.Option{}, s.Options...)
	opts = append(opts,
		kernel.WithRecorder(mem),
		kernel.WithTokens(kernel.NewSeqGenerator("chain")),
	)

	app, err := kernel.Start(s.Root, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: start: %w", s.Name, err)
	}

	for i, st := range s.Stimuli {
		if app.State() == kernel.AppTerminated {
			break
		}
		if _, err := app.Step(st.Event, st.Payload); err != nil {
			return nil, fmt.Errorf("scenario %q: stimulus %d (%s): %w", s.Name, i, st.Event, err)
		}
	}

	res := &Result{
		Trace: mem.Records(),
		Final: app.State(),
	}
	res.RootValue, res.RootErr = app.RootResult()
	return res, nil
}
