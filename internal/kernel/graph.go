package kernel

// edgeKind distinguishes permanent link edges from one-shot await edges.
type edgeKind int

const (
	// edgeLink is a permanent, user-controlled causal dependency: when the
	// source fires, the target reactor is started.
	edgeLink edgeKind = iota + 1
	// edgeAwait is a temporary resume dependency: when the source fires,
	// the suspended target reactor resumes and the edge is consumed.
	edgeAwait
)

// edge is a directed dependency edge stored in the graph.
type edge struct {
	seq    int64 // insertion order within the graph; doubles as the unlink key
	src    Source
	kind   edgeKind
	target ID     // link: reactor to start; await: reactor to resume
	filter Filter // nil admits everything
	owner  ID     // reactor whose death removes the edge; 0 = application

	// deferResume parks the resume on the deferred queue so the sub-chain
	// rooted at the source drains before the awaiter continues. Set for
	// await edges created by Call.
	deferResume bool
}

// LinkHandle identifies a link edge for later removal.
type LinkHandle struct {
	src Source
	seq int64
}

// graph stores link and await edges keyed by source. Enumeration order per
// source is insertion order; fan-out snapshots the edge set at the moment of
// firing, so mutations during a chain never affect the currently propagating
// set.
type graph struct {
	edges   map[Source][]*edge
	inbound map[ID]int // inbound link-edge count per target reactor
	nextSeq int64
}

func newGraph() *graph {
	return &graph{
		edges:   make(map[Source][]*edge),
		inbound: make(map[ID]int),
	}
}

// addLink adds a permanent link edge. Idempotent on (src, dst): adding an
// existing link returns the original handle and reports false.
func (g *graph) addLink(src Source, dst ID, filter Filter, owner ID) (LinkHandle, bool) {
	for _, e := range g.edges[src] {
		if e.kind == edgeLink && e.target == dst {
			return LinkHandle{src: src, seq: e.seq}, false
		}
	}
	g.nextSeq++
	e := &edge{
		seq:    g.nextSeq,
		src:    src,
		kind:   edgeLink,
		target: dst,
		filter: filter,
		owner:  owner,
	}
	g.edges[src] = append(g.edges[src], e)
	g.inbound[dst]++
	return LinkHandle{src: src, seq: e.seq}, true
}

// removeLink removes the link edge named by the handle. No-op if absent.
func (g *graph) removeLink(h LinkHandle) bool {
	for _, e := range g.edges[h.src] {
		if e.kind == edgeLink && e.seq == h.seq {
			g.removeEdge(e)
			return true
		}
	}
	return false
}

// addAwait creates a fresh await edge targeting the suspended reactor. The
// edge is owned by its target: killing the awaiter removes it.
func (g *graph) addAwait(src Source, resume ID, filter Filter, deferResume bool) *edge {
	g.nextSeq++
	e := &edge{
		seq:         g.nextSeq,
		src:         src,
		kind:        edgeAwait,
		target:      resume,
		filter:      filter,
		owner:       resume,
		deferResume: deferResume,
	}
	g.edges[src] = append(g.edges[src], e)
	return e
}

// removeEdge unhooks a single edge. No-op if the edge is already gone.
func (g *graph) removeEdge(e *edge) bool {
	set := g.edges[e.src]
	for i, cand := range set {
		if cand == e {
			g.edges[e.src] = append(set[:i:i], set[i+1:]...)
			if len(g.edges[e.src]) == 0 {
				delete(g.edges, e.src)
			}
			if e.kind == edgeLink {
				g.inbound[e.target]--
				if g.inbound[e.target] == 0 {
					delete(g.inbound, e.target)
				}
			}
			return true
		}
	}
	return false
}

// fanout returns a snapshot of the outgoing edges for a source, in insertion
// order. The caller may mutate the graph while iterating the snapshot.
func (g *graph) fanout(src Source) []*edge {
	set := g.edges[src]
	if len(set) == 0 {
		return nil
	}
	out := make([]*edge, len(set))
	copy(out, set)
	return out
}

// dropReactor removes every edge referencing the reactor, as source, target,
// or owner. Called exactly once, when the reactor dies.
func (g *graph) dropReactor(id ID) {
	src := ReactorSource(id)
	for _, e := range g.fanout(src) {
		g.removeEdge(e)
	}
	for s := range g.edges {
		for _, e := range g.fanout(s) {
			if e.target == id || e.owner == id {
				g.removeEdge(e)
			}
		}
	}
}

// inboundLinks returns the number of link edges targeting the reactor. A
// terminated reactor with inbound links re-arms instead of dying.
func (g *graph) inboundLinks(id ID) int {
	return g.inbound[id]
}

// edgeCount returns the total number of edges. Used for tests and
// introspection.
func (g *graph) edgeCount() int {
	n := 0
	for _, set := range g.edges {
		n += len(set)
	}
	return n
}
