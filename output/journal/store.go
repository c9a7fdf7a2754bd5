package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reStrike-d-o-o/reStrike-VTA/errors"
	"github.com/reStrike-d-o-o/reStrike-VTA/output"
	"github.com/reStrike-d-o-o/reStrike-VTA/protocol"
	"github.com/reStrike-d-o-o/reStrike-VTA/publisher"
)

const schema = `
CREATE TABLE IF NOT EXISTS statements (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run        TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	arrived_at INTEGER NOT NULL,
	tag        TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	raw        TEXT    NOT NULL,
	wire       TEXT    NOT NULL,
	payload    TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS diagnostics (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run        TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	arrived_at INTEGER NOT NULL,
	kind       TEXT    NOT NULL,
	tag        TEXT    NOT NULL DEFAULT '',
	raw        TEXT    NOT NULL DEFAULT '',
	error      TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run        TEXT    NOT NULL UNIQUE,
	started_at INTEGER NOT NULL
);
`

// Entry is one journaled statement.
type Entry struct {
	Run       string
	Seq       uint64
	ArrivedAt time.Time
	Tag       string
	Kind      string
	// Raw is the statement as received; Wire is its canonical encoding.
	Raw     string
	Wire    string
	Payload json.RawMessage
}

// DiagnosticEntry is one journaled diagnostic.
type DiagnosticEntry struct {
	Run       string
	Seq       uint64
	ArrivedAt time.Time
	Kind      string
	Tag       string
	Raw       string
	Error     string
}

// Store is the SQLite journal file. Rows are grouped by run, one per feed
// start; sequence numbers are unique within a run.
type Store struct {
	db  *sql.DB
	run string
}

// Open opens or creates the journal at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "journal", "Open", "path validation")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.WrapFatal(err, "journal", "Open", "open sqlite db")
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "journal", "Open", "ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapFatal(err, "journal", "Open", "create schema")
	}

	return &Store{db: db}, nil
}

// BeginRun registers a new run. Subsequent appends are tagged with it.
func (s *Store) BeginRun(ctx context.Context) (string, error) {
	run := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs (run, started_at) VALUES (?, ?)`, run, time.Now().UnixNano()); err != nil {
		return "", errors.WrapFatal(err, "journal", "BeginRun", "register run")
	}
	s.run = run
	return run, nil
}

// Close releases the database. Appends after Close fail.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "journal", "Close", "close sqlite db")
	}
	return nil
}

// Run returns the current run, or "" before BeginRun.
func (s *Store) Run() string {
	return s.run
}

// Append writes event and diagnostic notifications in one transaction.
// Other kinds are ignored. Returns the number of rows written.
func (s *Store) Append(ctx context.Context, batch []publisher.Notification) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if s.run == "" {
		return 0, errors.WrapInvalid(errors.ErrNotStarted, "journal", "Append", "no run begun")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.WrapTransient(err, "journal", "Append", "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for _, n := range batch {
		switch n.Kind {
		case publisher.KindEvent:
			err = insertStatement(ctx, tx, s.run, n)
		case publisher.KindDiagnostic:
			err = insertDiagnostic(ctx, tx, s.run, n)
		default:
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "journal", "Append", fmt.Sprintf("write seq %d", n.Seq))
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.WrapTransient(err, "journal", "Append", "commit")
	}
	return written, nil
}

func insertStatement(ctx context.Context, tx *sql.Tx, run string, n publisher.Notification) error {
	rec := protocol.NewRecord(n.Event)
	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return err
	}
	raw := n.Raw
	if raw == "" {
		raw = rec.Wire
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO statements (run, seq, arrived_at, tag, kind, raw, wire, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run, int64(n.Seq), rec.At.UnixNano(), rec.Tag, rec.Kind.String(), raw, rec.Wire, string(payload))
	return err
}

func insertDiagnostic(ctx context.Context, tx *sql.Tx, run string, n publisher.Notification) error {
	d := output.NewDiagnostic(n.Err, n.Raw)
	_, err := tx.ExecContext(ctx, `
INSERT INTO diagnostics (run, seq, arrived_at, kind, tag, raw, error)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run, int64(n.Seq), n.At.UnixNano(), d.Kind, d.Tag, d.Raw, d.Error)
	return err
}

// Runs returns the run identifiers in the order they were opened.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run FROM runs ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "journal", "Runs", "query")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, errors.Wrap(err, "journal", "Runs", "scan")
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Statements returns the statements journaled by run in arrival order.
func (s *Store) Statements(ctx context.Context, run string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run, seq, arrived_at, tag, kind, raw, wire, payload
FROM statements WHERE run = ? ORDER BY id`, run)
	if err != nil {
		return nil, errors.Wrap(err, "journal", "Statements", "query")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			seq     int64
			at      int64
			payload string
		)
		if err := rows.Scan(&e.Run, &seq, &at, &e.Tag, &e.Kind, &e.Raw, &e.Wire, &payload); err != nil {
			return nil, errors.Wrap(err, "journal", "Statements", "scan")
		}
		e.Seq = uint64(seq)
		e.ArrivedAt = time.Unix(0, at).UTC()
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Diagnostics returns the diagnostics journaled by run in arrival order.
func (s *Store) Diagnostics(ctx context.Context, run string) ([]DiagnosticEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run, seq, arrived_at, kind, tag, raw, error
FROM diagnostics WHERE run = ? ORDER BY id`, run)
	if err != nil {
		return nil, errors.Wrap(err, "journal", "Diagnostics", "query")
	}
	defer rows.Close()

	var out []DiagnosticEntry
	for rows.Next() {
		var (
			d   DiagnosticEntry
			seq int64
			at  int64
		)
		if err := rows.Scan(&d.Run, &seq, &at, &d.Kind, &d.Tag, &d.Raw, &d.Error); err != nil {
			return nil, errors.Wrap(err, "journal", "Diagnostics", "scan")
		}
		d.Seq = uint64(seq)
		d.ArrivedAt = time.Unix(0, at).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
