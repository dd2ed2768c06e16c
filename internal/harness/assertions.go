package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/quiesce/internal/trace"
)

// OfKind returns the records of one kind, in order.
func OfKind(records []trace.Record, kind string) []trace.Record {
	var out []trace.Record
	for _, r := range records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// AssertCount asserts that a kind appears exactly n times in the trace.
func AssertCount(t *testing.T, records []trace.Record, kind string, n int) {
	t.Helper()
	assert.Len(t, OfKind(records, kind), n, "trace records of kind %q", kind)
}

// AssertOrder asserts that the given (kind, reactor) pairs appear in the
// trace in order, not necessarily adjacently.
func AssertOrder(t *testing.T, records []trace.Record, want ...trace.Record) {
	t.Helper()
	i := 0
	for _, r := range records {
		if i >= len(want) {
			break
		}
		if r.Kind == want[i].Kind && r.Reactor == want[i].Reactor {
			i++
		}
	}
	assert.Equal(t, len(want), i,
		"trace missing expected subsequence from element %d (kind=%q reactor=%d)",
		i, safeKind(want, i), safeReactor(want, i))
}

func safeKind(want []trace.Record, i int) string {
	if i < len(want) {
		return want[i].Kind
	}
	return ""
}

func safeReactor(want []trace.Record, i int) uint64 {
	if i < len(want) {
		return want[i].Reactor
	}
	return 0
}
