package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quiesce/internal/kernel"
)

func TestBuiltin_RepostForwardsPayload(t *testing.T) {
	relay := buildBody(ReactorDecl{
		Name:    "relay",
		Builtin: "repost",
		Params:  map[string]string{"event": "in", "as": "out"},
	})

	root := func(rt *kernel.Runtime) (any, error) {
		r := rt.Create(relay)
		if err := rt.Spawn(r); err != nil {
			return nil, err
		}
		return rt.Await(kernel.EventSource("out"))
	}

	app, err := kernel.Start(root, kernel.WithTokens(kernel.NewSeqGenerator("chain")))
	require.NoError(t, err)

	state, err := app.Step("in", "payload")
	require.NoError(t, err)
	assert.Equal(t, kernel.AppTerminated, state)

	v, err := app.RootResult()
	require.NoError(t, err)
	assert.Equal(t, "payload", v, "repost forwards the payload under the new name")
}

func TestBuiltin_CounterEmitsRunningCount(t *testing.T) {
	counter := buildBody(ReactorDecl{
		Name:    "hits",
		Builtin: "counter",
		Params:  map[string]string{"event": "hit", "emit": "count"},
	})

	var counts []string
	root := func(rt *kernel.Runtime) (any, error) {
		r := rt.Create(counter)
		if err := rt.Spawn(r); err != nil {
			return nil, err
		}
		probe := rt.Create(func(rt *kernel.Runtime) (any, error) {
			for {
				v, err := rt.Await(kernel.EventSource("count"))
				if err != nil {
					return nil, err
				}
				counts = append(counts, v.(string))
			}
		})
		if err := rt.Spawn(probe); err != nil {
			return nil, err
		}
		return rt.Await(kernel.EventSource("halt"))
	}

	app, err := kernel.Start(root, kernel.WithTokens(kernel.NewSeqGenerator("chain")))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := app.Step("hit", nil)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"1", "2", "3"}, counts)
}

func TestBuiltin_OnceReturnsFirstFiring(t *testing.T) {
	once := buildBody(ReactorDecl{
		Name:    "first",
		Builtin: "once",
		Params:  map[string]string{"event": "signal"},
	})

	var got any
	root := func(rt *kernel.Runtime) (any, error) {
		r := rt.Create(once)
		if err := rt.Spawn(r); err != nil {
			return nil, err
		}
		v, err := rt.Await(kernel.ReactorSource(r))
		if err != nil {
			return nil, err
		}
		got = v
		return v, nil
	}

	app, err := kernel.Start(root, kernel.WithTokens(kernel.NewSeqGenerator("chain")))
	require.NoError(t, err)

	state, err := app.Step("signal", "hello")
	require.NoError(t, err)
	assert.Equal(t, kernel.AppTerminated, state)
	assert.Equal(t, "hello", got)
}

func TestInstantiate_RunsTopologyToHalt(t *testing.T) {
	top, err := compileString(t, `
topology: {
	name: "wired"
	reactors: {
		greeter: { builtin: "log", params: { message: "hello" } }
		relay:   { builtin: "repost", params: { event: "ping", as: "pong" } }
		pong:    { builtin: "once", params: { event: "pong" } }
	}
	autostart: ["relay", "pong"]
	links: [ { source: "event:greet", target: "greeter" } ]
}
`)
	require.NoError(t, err)

	events := []struct {
		name    string
		payload any
	}{{"greet", nil}, {"ping", "p"}, {"halt", "done"}}
	i := 0
	next := func() (string, any, bool) {
		if i >= len(events) {
			return "", nil, false
		}
		ev := events[i]
		i++
		return ev.name, ev.payload, true
	}

	opts := append(top.Options(), kernel.WithTokens(kernel.NewSeqGenerator("chain")))
	v, err := kernel.Loop(next, Instantiate(top), opts...)
	require.NoError(t, err)
	assert.Equal(t, "done", v, "halt payload is the run's terminal value")
}

func TestCheckBuiltin(t *testing.T) {
	err := checkBuiltin(ReactorDecl{Name: "x", Builtin: "watch", Params: map[string]string{"event": "e"}})
	assert.NoError(t, err)

	err = checkBuiltin(ReactorDecl{Name: "x", Builtin: "watch"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `requires param "event"`)

	err = checkBuiltin(ReactorDecl{Name: "x", Builtin: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown builtin")
}
