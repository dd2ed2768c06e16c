// Package topology compiles declarative CUE topology files into kernel
// wiring for the CLI embedding.
//
// A topology names a set of reactors drawn from a builtin body catalog,
// permanent link edges between event sources and reactors, and the reactors
// to spawn at startup. Instantiate turns a compiled topology into a root
// reactor body that performs the wiring inside the starting chain and then
// parks on the halt event.
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
package topology
