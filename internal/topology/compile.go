package topology

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
)

// CompileError reports a structured compile failure with CUE position
// information when available.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Load reads and compiles a topology file from disk.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile topology: %w", err)
	}
	return Compile(v.LookupPath(cue.ParsePath("topology")))
}

// Compile parses a CUE value into a validated Topology.
//
// The CUE value should be the topology struct itself, i.e. the value at
// path "topology" of a file such as:
//
//	topology: {
//		name: "demo"
//		reactors: { ticker: { builtin: "log", params: { message: "tick" } } }
//		links: [ { source: "event:tick", target: "ticker" } ]
//	}
func Compile(v cue.Value) (*Topology, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "topology", Message: "topology struct is required"}
	}
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("topology value: %w", err)
	}

	t := &Topology{Halt: DefaultHaltEvent}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	t.Name = name

	if halt := v.LookupPath(cue.ParsePath("halt")); halt.Exists() {
		s, err := halt.String()
		if err != nil {
			return nil, &CompileError{Field: "halt", Message: err.Error(), Pos: halt.Pos()}
		}
		t.Halt = s
	}

	if max := v.LookupPath(cue.ParsePath("maxActivations")); max.Exists() {
		n, err := max.Int64()
		if err != nil {
			return nil, &CompileError{Field: "maxActivations", Message: err.Error(), Pos: max.Pos()}
		}
		t.MaxActivations = int(n)
	}

	if err := parseReactors(v, t); err != nil {
		return nil, err
	}
	if err := parseAutostart(v, t); err != nil {
		return nil, err
	}
	if err := parseLinks(v, t); err != nil {
		return nil, err
	}

	t.sortReactors()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate topology %q: %w", t.Name, err)
	}
	return t, nil
}

func parseReactors(v cue.Value, t *Topology) error {
	reactors := v.LookupPath(cue.ParsePath("reactors"))
	if !reactors.Exists() {
		return &CompileError{Field: "reactors", Message: "at least one reactor is required", Pos: v.Pos()}
	}
	it, err := reactors.Fields()
	if err != nil {
		return &CompileError{Field: "reactors", Message: err.Error(), Pos: reactors.Pos()}
	}
	for it.Next() {
		decl := ReactorDecl{Name: it.Selector().Unquoted()}
		rv := it.Value()

		builtin, err := requiredString(rv, "builtin")
		if err != nil {
			return fmt.Errorf("reactor %q: %w", decl.Name, err)
		}
		decl.Builtin = builtin

		if params := rv.LookupPath(cue.ParsePath("params")); params.Exists() {
			pit, err := params.Fields()
			if err != nil {
				return &CompileError{Field: decl.Name + ".params", Message: err.Error(), Pos: params.Pos()}
			}
			decl.Params = make(map[string]string)
			for pit.Next() {
				s, err := pit.Value().String()
				if err != nil {
					return &CompileError{
						Field:   decl.Name + ".params." + pit.Selector().Unquoted(),
						Message: err.Error(),
						Pos:     pit.Value().Pos(),
					}
				}
				decl.Params[pit.Selector().Unquoted()] = s
			}
		}
		t.Reactors = append(t.Reactors, decl)
	}
	if len(t.Reactors) == 0 {
		return &CompileError{Field: "reactors", Message: "at least one reactor is required", Pos: reactors.Pos()}
	}
	return nil
}

func parseAutostart(v cue.Value, t *Topology) error {
	auto := v.LookupPath(cue.ParsePath("autostart"))
	if !auto.Exists() {
		return nil
	}
	it, err := auto.List()
	if err != nil {
		return &CompileError{Field: "autostart", Message: err.Error(), Pos: auto.Pos()}
	}
	for it.Next() {
		s, err := it.Value().String()
		if err != nil {
			return &CompileError{Field: "autostart", Message: err.Error(), Pos: it.Value().Pos()}
		}
		t.Autostart = append(t.Autostart, s)
	}
	return nil
}

func parseLinks(v cue.Value, t *Topology) error {
	links := v.LookupPath(cue.ParsePath("links"))
	if !links.Exists() {
		return nil
	}
	it, err := links.List()
	if err != nil {
		return &CompileError{Field: "links", Message: err.Error(), Pos: links.Pos()}
	}
	for it.Next() {
		lv := it.Value()
		source, err := requiredString(lv, "source")
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		target, err := requiredString(lv, "target")
		if err != nil {
			return fmt.Errorf("link: %w", err)
		}
		t.Links = append(t.Links, LinkDecl{Source: source, Target: target})
	}
	return nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: err.Error(), Pos: fv.Pos()}
	}
	return s, nil
}
