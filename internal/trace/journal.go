package trace

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Journal is a SQLite-backed recorder for post-hoc inspection via the CLI.
// It persists traces, never kernel state.
//
// Uses WAL mode so the trace command can read while a run is recording.
type Journal struct {
	db *sql.DB

	// Recording errors are remembered rather than surfaced on the hot
	// path: Recorder.Record has no error return by design, and a broken
	// journal must not take the kernel down.
	err error
}

// OpenJournal creates or opens a trace journal at the given path.
// Idempotent - safe to call on an existing journal.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite supports one writer at a time; the engine is the one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record implements Recorder. The first write error is remembered and
// reported by Err; subsequent records are dropped.
func (j *Journal) Record(r Record) {
	if j.err != nil {
		return
	}
	_, err := j.db.Exec(
		`INSERT INTO records (seq, chain, kind, reactor, event, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Seq, r.Chain, r.Kind, int64(r.Reactor), r.Event, r.Detail,
	)
	if err != nil {
		j.err = fmt.Errorf("record seq %d: %w", r.Seq, err)
	}
}

// Err returns the first recording error, if any.
func (j *Journal) Err() error { return j.err }

// Close closes the journal.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Chains returns the distinct chain tokens in the journal, in first-seen
// order.
func (j *Journal) Chains() ([]string, error) {
	rows, err := j.db.Query(`SELECT chain FROM records GROUP BY chain ORDER BY MIN(seq)`)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	var chains []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		chains = append(chains, c)
	}
	return chains, rows.Err()
}

// ReadChain returns the records of one chain in seq order. An unknown chain
// yields an empty slice, not an error.
func (j *Journal) ReadChain(token string) ([]Record, error) {
	return j.read(`SELECT seq, chain, kind, reactor, event, detail FROM records WHERE chain = ? ORDER BY seq`, token)
}

// ReadAll returns every record in seq order.
func (j *Journal) ReadAll() ([]Record, error) {
	return j.read(`SELECT seq, chain, kind, reactor, event, detail FROM records ORDER BY seq`)
}

func (j *Journal) read(query string, args ...any) ([]Record, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var reactor int64
		if err := rows.Scan(&r.Seq, &r.Chain, &r.Kind, &reactor, &r.Event, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Reactor = uint64(reactor)
		records = append(records, r)
	}
	return records, rows.Err()
}
