package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/quiesce/internal/trace"
)

// RunWithGolden executes a scenario and compares its trace against a golden
// file under testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files are the source of truth for expected trace behavior: the
// exact activation order a scenario produces under the FIFO policy.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %q: %v", scenario.Name, err)
	}

	data, err := trace.MarshalRecords(result.Trace)
	if err != nil {
		t.Fatalf("scenario %q: marshal trace: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}
