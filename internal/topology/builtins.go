package topology

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/quiesce/internal/kernel"
)

// The builtin body catalog. Topologies compose these rather than supplying
// code; embeddings that need custom bodies use the kernel API directly.
//
//	log     params: message            start-triggered; logs and returns message
//	once    params: event              awaits one firing, returns its value
//	watch   params: event              loops forever, logging every firing
//	repost  params: event, as          loops forever, reposting firings under a new name
//	counter params: event, emit?       loops forever, counting firings; posts the
//	                                   running count to the emit event when set

// builtinParams maps each builtin to its required params.
var builtinParams = map[string][]string{
	"log":     {"message"},
	"once":    {"event"},
	"watch":   {"event"},
	"repost":  {"event", "as"},
	"counter": {"event"},
}

// checkBuiltin validates the builtin name and its required params.
func checkBuiltin(decl ReactorDecl) error {
	required, ok := builtinParams[decl.Builtin]
	if !ok {
		return fmt.Errorf("unknown builtin %q", decl.Builtin)
	}
	for _, p := range required {
		if decl.Params[p] == "" {
			return fmt.Errorf("builtin %q requires param %q", decl.Builtin, p)
		}
	}
	return nil
}

// buildBody constructs the kernel body for a declaration. The declaration
// must already have passed checkBuiltin.
func buildBody(decl ReactorDecl) kernel.Body {
	name := decl.Name
	switch decl.Builtin {
	case "log":
		message := decl.Params["message"]
		return func(rt *kernel.Runtime) (any, error) {
			slog.Info("log reactor fired", "reactor", name, "message", message)
			return message, nil
		}

	case "once":
		event := decl.Params["event"]
		return func(rt *kernel.Runtime) (any, error) {
			return rt.Await(kernel.EventSource(event))
		}

	case "watch":
		event := decl.Params["event"]
		return func(rt *kernel.Runtime) (any, error) {
			for {
				v, err := rt.Await(kernel.EventSource(event))
				if err != nil {
					return nil, err
				}
				slog.Info("watch", "reactor", name, "event", event, "value", v)
			}
		}

	case "repost":
		event := decl.Params["event"]
		as := decl.Params["as"]
		return func(rt *kernel.Runtime) (any, error) {
			for {
				v, err := rt.Await(kernel.EventSource(event))
				if err != nil {
					return nil, err
				}
				rt.Post(as, v)
			}
		}

	case "counter":
		event := decl.Params["event"]
		emit := decl.Params["emit"]
		return func(rt *kernel.Runtime) (any, error) {
			n := 0
			for {
				if _, err := rt.Await(kernel.EventSource(event)); err != nil {
					return nil, err
				}
				n++
				if emit != "" {
					rt.Post(emit, strconv.Itoa(n))
				}
			}
		}

	default:
		// Unreachable after checkBuiltin; fail loudly in the body rather
		// than at wiring time so the run records the failure.
		return func(rt *kernel.Runtime) (any, error) {
			return nil, fmt.Errorf("unknown builtin %q", decl.Builtin)
		}
	}
}

// Instantiate turns a validated topology into a root reactor body. The root
// creates every declared reactor, installs the declared links, spawns the
// autostart set, then parks on the halt event; the halt payload becomes its
// terminal value.
func Instantiate(t *Topology) kernel.Body {
	return func(rt *kernel.Runtime) (any, error) {
		ids := make(map[string]kernel.ID, len(t.Reactors))
		for _, decl := range t.Reactors {
			ids[decl.Name] = rt.Create(buildBody(decl))
		}

		for _, l := range t.Links {
			kind, name, _ := splitSource(l.Source)
			var src kernel.Source
			if kind == "event" {
				src = kernel.EventSource(name)
			} else {
				src = kernel.ReactorSource(ids[name])
			}
			if _, err := rt.Link(src, ids[l.Target]); err != nil {
				return nil, fmt.Errorf("link %s -> %s: %w", l.Source, l.Target, err)
			}
		}

		for _, name := range t.Autostart {
			if err := rt.Spawn(ids[name]); err != nil {
				return nil, fmt.Errorf("autostart %s: %w", name, err)
			}
		}

		slog.Info("topology wired",
			"topology", t.Name,
			"reactors", len(t.Reactors),
			"links", len(t.Links),
			"autostart", len(t.Autostart),
		)
		return rt.Await(kernel.EventSource(t.Halt))
	}
}

// Options returns the kernel options a topology implies.
func (t *Topology) Options() []kernel.Option {
	var opts []kernel.Option
	if t.MaxActivations > 0 {
		opts = append(opts, kernel.WithMaxActivations(t.MaxActivations))
	}
	return opts
}
