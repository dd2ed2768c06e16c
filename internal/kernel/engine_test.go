package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startApp runs Start with deterministic chain tokens.
func startApp(t *testing.T, root Body, opts ...Option) *App {
	t.Helper()
	opts = append(opts, WithTokens(NewSeqGenerator("chain")))
	app, err := Start(root, opts...)
	require.NoError(t, err)
	return app
}

// Bodies append to a shared log; the engine is single-threaded and every
// append happens before the driving Step returns, so no locking is needed.

func TestBasicLinkPropagation(t *testing.T) {
	var log []string
	var rB ID

	root := func(rt *Runtime) (any, error) {
		rB = rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "b")
			return "b", nil
		})
		rA := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "a1")
			if _, err := rt.Await(ReactorSource(rB)); err != nil {
				return nil, err
			}
			log = append(log, "a2")
			return nil, nil
		})
		if _, err := rt.Link(EventSource("eA"), rA); err != nil {
			return nil, err
		}
		if _, err := rt.Link(EventSource("trigger_rB"), rB); err != nil {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)

	_, err := app.Step("eA", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, log, "rA parks awaiting rB")

	_, err = app.Step("trigger_rB", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b", "a2"}, log)
	assert.Equal(t, AppReady, app.State())
}

func TestSpawnForkConcurrency(t *testing.T) {
	a := 0
	var emitted []int
	var rootErr error

	root := func(rt *Runtime) (any, error) {
		b1 := rt.Create(func(rt *Runtime) (any, error) {
			a++
			return a, nil
		})
		b2 := rt.Create(func(rt *Runtime) (any, error) {
			a++
			return a, nil
		})
		if err := rt.Spawn(b1); err != nil {
			return nil, err
		}
		if err := rt.Spawn(b2); err != nil {
			return nil, err
		}
		v1, err := rt.Await(ReactorSource(b1))
		if err != nil {
			return nil, err
		}
		v2, err := rt.Await(ReactorSource(b2))
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, v1.(int), v2.(int))
		return nil, nil
	}

	app := startApp(t, func(rt *Runtime) (any, error) {
		v, err := root(rt)
		rootErr = err
		return v, err
	})

	require.NoError(t, rootErr)
	assert.Equal(t, 2, a, "both forks ran exactly once")
	assert.ElementsMatch(t, []int{1, 2}, emitted, "forks observed each other's effects in some order")
	assert.Equal(t, AppTerminated, app.State())
}

func TestAwaitDeliversTerminalValue(t *testing.T) {
	var got any
	var gotErr error

	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			return 42, nil
		})
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		got, gotErr = rt.Await(ReactorSource(rB))
		return got, gotErr
	}

	app := startApp(t, root)

	require.NoError(t, gotErr)
	assert.Equal(t, 42, got)
	assert.Equal(t, AppTerminated, app.State())
}

func TestAwaitSettledReactorDoesNotSuspend(t *testing.T) {
	var got any
	var gotErr error

	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			return 42, nil
		})
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		// Park on an event so rB runs and settles first.
		if _, err := rt.Await(EventSource("later")); err != nil {
			return nil, err
		}
		got, gotErr = rt.Await(ReactorSource(rB))
		return got, gotErr
	}

	app := startApp(t, root)
	_, err := app.Step("later", nil)
	require.NoError(t, err)

	require.NoError(t, gotErr)
	assert.Equal(t, 42, got, "await on a settled reactor returns its tombstone value")
	assert.Equal(t, AppTerminated, app.State())
}

func TestKillDeliversKilledToAwaiters(t *testing.T) {
	var awaitErr error
	startedForever := false

	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			startedForever = true
			return rt.Await(EventSource("forever"))
		})
		rC := rt.Create(func(rt *Runtime) (any, error) {
			return nil, rt.Kill(rB)
		})
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		if err := rt.Spawn(rC); err != nil {
			return nil, err
		}
		_, awaitErr = rt.Await(ReactorSource(rB))
		return nil, nil
	}

	app := startApp(t, root)

	assert.True(t, startedForever, "rB ran to its await before the kill")
	assert.True(t, IsKilled(awaitErr), "awaiter resumes with Killed, got %v", awaitErr)
	assert.False(t, IsFailure(awaitErr), "Killed is distinct from failure")
	assert.Equal(t, AppTerminated, app.State())
	assert.Equal(t, 0, app.EdgeCount(), "no edge references the killed reactor")
}

func TestKillReadyReactorSkipsQueuedStart(t *testing.T) {
	ran := false

	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			ran = true
			return nil, nil
		})
		rC := rt.Create(func(rt *Runtime) (any, error) {
			return nil, rt.Kill(rB)
		})
		// rC is queued ahead of rB: the kill lands while rB's start is
		// still pending.
		if err := rt.Spawn(rC); err != nil {
			return nil, err
		}
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		return nil, nil
	}

	startApp(t, root)
	assert.False(t, ran, "killed reactor leaves the queue without running")
}

func TestLoopEquivalence(t *testing.T) {
	newRoot := func(log *[]string) Body {
		return func(rt *Runtime) (any, error) {
			onE1 := rt.Create(func(rt *Runtime) (any, error) {
				*log = append(*log, "e1")
				return nil, nil
			})
			onE2 := rt.Create(func(rt *Runtime) (any, error) {
				*log = append(*log, "e2")
				return nil, nil
			})
			if _, err := rt.Link(EventSource("e1"), onE1); err != nil {
				return nil, err
			}
			if _, err := rt.Link(EventSource("e2"), onE2); err != nil {
				return nil, err
			}
			return rt.Await(EventSource("e2"))
		}
	}

	// Loop mode.
	var loopLog []string
	events := []struct {
		name    string
		payload any
	}{{"e1", nil}, {"e2", "fin"}}
	i := 0
	next := func() (string, any, bool) {
		if i >= len(events) {
			return "", nil, false
		}
		ev := events[i]
		i++
		return ev.name, ev.payload, true
	}
	loopValue, err := Loop(next, newRoot(&loopLog), WithTokens(NewSeqGenerator("chain")))
	require.NoError(t, err)

	// Step mode.
	var stepLog []string
	app := startApp(t, newRoot(&stepLog))
	_, err = app.Step("e1", nil)
	require.NoError(t, err)
	state, err := app.Step("e2", "fin")
	require.NoError(t, err)
	stepValue, stepErr := app.RootResult()
	require.NoError(t, stepErr)

	assert.Equal(t, stepLog, loopLog)
	assert.Equal(t, stepValue, loopValue)
	assert.Equal(t, "fin", loopValue, "root terminates with the e2 payload")
	assert.Equal(t, AppTerminated, state)
}

func TestCallSemantics(t *testing.T) {
	counter := 0
	observedAfterCall := -1

	root := func(rt *Runtime) (any, error) {
		rX := rt.Create(func(rt *Runtime) (any, error) {
			counter++
			return counter, nil
		})
		v, err := rt.Call(rX)
		if err != nil {
			return nil, err
		}
		observedAfterCall = counter
		return v, nil
	}

	app := startApp(t, root)

	assert.Equal(t, 1, observedAfterCall, "caller sees the callee's effects completed")
	v, err := app.RootResult()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCallWaitsForSubChain(t *testing.T) {
	var log []string

	root := func(rt *Runtime) (any, error) {
		rY := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "y")
			return nil, nil
		})
		rX := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "x")
			// Forked work that is part of the sub-chain rooted at rX.
			if err := rt.Spawn(rY); err != nil {
				return nil, err
			}
			return "done", nil
		})
		if _, err := rt.Call(rX); err != nil {
			return nil, err
		}
		log = append(log, "after-call")
		return nil, nil
	}

	startApp(t, root)
	assert.Equal(t, []string{"x", "y", "after-call"}, log,
		"call resumes only after the entire sub-chain rooted at the callee drains")
}

func TestFailureIsolation(t *testing.T) {
	boom := errors.New("boom")
	var awaitErr error
	linkedRan := false
	siblingRan := false

	root := func(rt *Runtime) (any, error) {
		rF := rt.Create(func(rt *Runtime) (any, error) {
			return nil, boom
		})
		rD := rt.Create(func(rt *Runtime) (any, error) {
			linkedRan = true
			return nil, nil
		})
		rOK := rt.Create(func(rt *Runtime) (any, error) {
			siblingRan = true
			return nil, nil
		})
		if _, err := rt.Link(ReactorSource(rF), rD); err != nil {
			return nil, err
		}
		if err := rt.Spawn(rF); err != nil {
			return nil, err
		}
		if err := rt.Spawn(rOK); err != nil {
			return nil, err
		}
		_, awaitErr = rt.Await(ReactorSource(rF))
		return nil, nil
	}

	app := startApp(t, root)

	require.True(t, IsFailure(awaitErr), "awaiter receives the failure as data, got %v", awaitErr)
	var fe *FailureError
	require.ErrorAs(t, awaitErr, &fe)
	assert.ErrorIs(t, fe, boom)
	assert.False(t, linkedRan, "link dependents are not triggered on failure")
	assert.True(t, siblingRan, "the chain continues past a failed reactor")
	assert.Equal(t, AppTerminated, app.State())
	assert.Equal(t, 0, app.EdgeCount())
}

func TestSelfKillUnwindsAtReturn(t *testing.T) {
	var awaitErr error
	linkedRan := false

	root := func(rt *Runtime) (any, error) {
		rK := rt.Create(func(rt *Runtime) (any, error) {
			if err := rt.Kill(rt.Self()); err != nil {
				return nil, err
			}
			// Still running: self-kill unwinds at the return point.
			return "ignored", nil
		})
		rL := rt.Create(func(rt *Runtime) (any, error) {
			linkedRan = true
			return nil, nil
		})
		if _, err := rt.Link(ReactorSource(rK), rL); err != nil {
			return nil, err
		}
		if err := rt.Spawn(rK); err != nil {
			return nil, err
		}
		_, awaitErr = rt.Await(ReactorSource(rK))
		return nil, nil
	}

	startApp(t, root)

	assert.True(t, IsKilled(awaitErr), "self-killed reactor settles as killed, got %v", awaitErr)
	assert.False(t, linkedRan, "terminal value of a self-killed reactor does not fire links")
}

func TestUnknownEventIsIgnored(t *testing.T) {
	root := func(rt *Runtime) (any, error) {
		return rt.Await(EventSource("shutdown"))
	}
	app := startApp(t, root)

	state, err := app.Step("nobody-listens", "payload")
	require.NoError(t, err)
	assert.Equal(t, AppReady, state)
}

func TestUnlinkRoundtrip(t *testing.T) {
	runs := 0

	root := func(rt *Runtime) (any, error) {
		r := rt.Create(func(rt *Runtime) (any, error) {
			runs++
			return nil, nil
		})
		h, err := rt.Link(EventSource("e"), r)
		if err != nil {
			return nil, err
		}
		rt.Unlink(h)
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)
	edgesBefore := app.EdgeCount()

	_, err := app.Step("e", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, runs, "link+unlink leaves the graph as it was")
	assert.Equal(t, edgesBefore, app.EdgeCount())
}

func TestUnlinkDuringChainDoesNotAffectCurrentFanout(t *testing.T) {
	var log []string
	var hV LinkHandle

	root := func(rt *Runtime) (any, error) {
		rV := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "v")
			return nil, nil
		})
		rU := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "u")
			rt.Unlink(hV)
			return nil, nil
		})
		var err error
		if _, err = rt.Link(EventSource("e"), rU); err != nil {
			return nil, err
		}
		if hV, err = rt.Link(EventSource("e"), rV); err != nil {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)

	_, err := app.Step("e", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"u", "v"}, log, "fan-out was snapshotted before the unlink")

	_, err = app.Step("e", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"u", "v", "u"}, log, "the unlink holds for later chains")
}

func TestLinkFilterOnEventPayload(t *testing.T) {
	var seen []any

	root := func(rt *Runtime) (any, error) {
		r := rt.Create(func(rt *Runtime) (any, error) {
			seen = append(seen, "hit")
			return nil, nil
		})
		_, err := rt.Link(EventSource("num"), r, func(v any) bool {
			n, ok := v.(int)
			return ok && n > 10
		})
		if err != nil {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)

	_, err := app.Step("num", 5)
	require.NoError(t, err)
	assert.Empty(t, seen, "filter rejects payload 5")

	_, err = app.Step("num", 11)
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestAwaitFilterKeepsEdgeArmedOnReject(t *testing.T) {
	var got any

	root := func(rt *Runtime) (any, error) {
		v, err := rt.Await(EventSource("num"), func(v any) bool {
			n, ok := v.(int)
			return ok && n == 2
		})
		if err != nil {
			return nil, err
		}
		got = v
		return v, nil
	}

	app := startApp(t, root)

	state, err := app.Step("num", 1)
	require.NoError(t, err)
	assert.Equal(t, AppReady, state, "rejected value leaves the awaiter parked")
	assert.Nil(t, got)

	state, err = app.Step("num", 2)
	require.NoError(t, err)
	assert.Equal(t, AppTerminated, state)
	assert.Equal(t, 2, got)
}

func TestAwaitFilterRejectingTerminalValueResumesKilled(t *testing.T) {
	var awaitErr error

	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			return 42, nil
		})
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		_, awaitErr = rt.Await(ReactorSource(rB), func(v any) bool {
			return v == 99
		})
		return nil, nil
	}

	startApp(t, root)

	// The source settles exactly once; a rejecting filter can never be
	// satisfied afterwards, so the awaiter resumes as if the source died.
	assert.True(t, IsKilled(awaitErr), "got %v", awaitErr)
}

func TestPostFiresWithinSameChain(t *testing.T) {
	var log []string

	root := func(rt *Runtime) (any, error) {
		relay := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "relay")
			rt.Post("stage2", nil)
			return nil, nil
		})
		sink := rt.Create(func(rt *Runtime) (any, error) {
			log = append(log, "sink")
			return nil, nil
		})
		if _, err := rt.Link(EventSource("stage1"), relay); err != nil {
			return nil, err
		}
		if _, err := rt.Link(EventSource("stage2"), sink); err != nil {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)

	_, err := app.Step("stage1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"relay", "sink"}, log, "post propagates inside one chain")
}

func TestLinkedReactorRearmsAcrossChains(t *testing.T) {
	n := 0

	root := func(rt *Runtime) (any, error) {
		r := rt.Create(func(rt *Runtime) (any, error) {
			n++
			return n, nil
		})
		if _, err := rt.Link(EventSource("go"), r); err != nil {
			return nil, err
		}
		if _, err := rt.Link(EventSource("park"), r); err != nil {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)

	_, err := app.Step("go", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "linked reactor re-arms after terminating")

	_, err = app.Step("go", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "permanent link fires across chains")
}

func TestChainLimitAbandonsRunawayChain(t *testing.T) {
	root := func(rt *Runtime) (any, error) {
		spinner := rt.Create(func(rt *Runtime) (any, error) {
			rt.Post("loop", nil)
			return nil, nil
		})
		if _, err := rt.Link(EventSource("loop"), spinner); err != nil {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root, WithMaxActivations(25))

	_, err := app.Step("loop", nil)
	require.Error(t, err)
	assert.True(t, IsChainLimit(err), "got %v", err)
	var ce *ChainLimitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 25, ce.Limit)
}

func TestInvalidTransitionOnDeadReactor(t *testing.T) {
	var spawnErr, linkErr, killErr, awaitErr error

	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			return nil, nil
		})
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		// Park so rB terminates (no inbound links: it dies).
		if _, err := rt.Await(EventSource("later")); err != nil {
			return nil, err
		}
		spawnErr = rt.Spawn(rB)
		_, linkErr = rt.Link(EventSource("e"), rB)
		killErr = rt.Kill(rB)
		_, awaitErr = rt.Await(ReactorSource(rB)) // settled: returns tombstone, no error
		return nil, nil
	}

	app := startApp(t, root)
	_, err := app.Step("later", nil)
	require.NoError(t, err)

	assert.True(t, IsInvalidTransition(spawnErr), "spawn on dead: got %v", spawnErr)
	assert.True(t, IsInvalidTransition(linkErr), "link to dead: got %v", linkErr)
	assert.True(t, IsInvalidTransition(killErr), "kill on dead: got %v", killErr)
	assert.NoError(t, awaitErr, "await on settled reactor is not an error")
	assert.Equal(t, AppTerminated, app.State())
}

func TestDeterministicOrderWithoutConcurrentEnqueues(t *testing.T) {
	for run := 0; run < 3; run++ {
		var log []string
		root := func(rt *Runtime) (any, error) {
			for _, name := range []string{"one", "two", "three"} {
				name := name
				if _, err := rt.LinkFunc(EventSource("go"), func(rt *Runtime) (any, error) {
					log = append(log, name)
					return nil, nil
				}); err != nil {
					return nil, err
				}
			}
			return rt.Await(EventSource("shutdown"))
		}

		app := startApp(t, root)
		_, err := app.Step("go", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two", "three"}, log, "FIFO policy is stable across runs")
	}
}

func TestEdgeIntegrityAfterChains(t *testing.T) {
	root := func(rt *Runtime) (any, error) {
		rB := rt.Create(func(rt *Runtime) (any, error) {
			return rt.Await(EventSource("forever"))
		})
		if err := rt.Spawn(rB); err != nil {
			return nil, err
		}
		if _, err := rt.Await(ReactorSource(rB)); !IsKilled(err) {
			return nil, err
		}
		return rt.Await(EventSource("shutdown"))
	}

	app := startApp(t, root)
	// Starting chain parked rB on "forever" and root on rB: 2 await edges.
	assert.Equal(t, 2, app.EdgeCount())

	rB := ID(2)
	require.NoError(t, app.Kill(rB))

	// Both rB's own await edge and the edge awaiting rB are gone; root is
	// now parked on shutdown.
	assert.Equal(t, 1, app.EdgeCount())
	assert.Equal(t, AppReady, app.State())

	state, err := app.Step("shutdown", nil)
	require.NoError(t, err)
	assert.Equal(t, AppTerminated, state)
	assert.Equal(t, 0, app.EdgeCount(), "a drained, terminated app holds no edges")
}
