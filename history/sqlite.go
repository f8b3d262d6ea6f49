package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/twitter/solo/runner"
)

const schema = `
CREATE TABLE IF NOT EXISTS results(
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	prompt TEXT,
	model TEXT,
	err TEXT,
	payload_bytes INTEGER NOT NULL DEFAULT 0,
	elapsed_ns INTEGER NOT NULL DEFAULT 0,
	submitted INTEGER NOT NULL,
	started INTEGER,
	settled INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS results_job_id ON results(job_id);
`

// SqliteStore keeps records in a sqlite database, pruning to the newest size rows.
type SqliteStore struct {
	db   *sql.DB
	size int
}

func OpenSqlite(path string, size int) (*SqliteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "Couldn't create history dir for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't open history %s", path)
	}
	// sqlite wants a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Couldn't migrate history schema")
	}
	return &SqliteStore{db: db, size: size}, nil
}

func (s *SqliteStore) Add(ctx context.Context, r Record) error {
	var started sql.NullInt64
	if !r.Started.IsZero() {
		started = sql.NullInt64{Int64: r.Started.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results(job_id, outcome, prompt, model, err, payload_bytes, elapsed_ns, submitted, started, settled)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		string(r.JobID), r.Outcome.String(), nullStr(r.Prompt), nullStr(r.Model), nullStr(r.Error),
		r.PayloadBytes, int64(r.Elapsed), r.Submitted.UnixNano(), started, r.Settled.UnixNano(),
	)
	if err != nil {
		return errors.Wrapf(err, "Couldn't record %s", r.JobID)
	}
	if s.size > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM results WHERE seq <= (SELECT MAX(seq) FROM results) - ?`, s.size)
		if err != nil {
			return errors.Wrap(err, "Couldn't prune history")
		}
	}
	return nil
}

func (s *SqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, outcome, prompt, model, err, payload_bytes, elapsed_ns, submitted, started, settled
		 FROM results ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't query history")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                      Record
			id, outcome            string
			prompt, model, errText sql.NullString
			elapsed, submitted     int64
			started                sql.NullInt64
			settled                int64
		)
		if err := rows.Scan(&id, &outcome, &prompt, &model, &errText, &r.PayloadBytes, &elapsed, &submitted, &started, &settled); err != nil {
			return nil, errors.Wrap(err, "Couldn't scan history row")
		}
		if r.Outcome, err = runner.ParseOutcome(outcome); err != nil {
			return nil, err
		}
		r.JobID = runner.JobID(id)
		r.Prompt, r.Model, r.Error = prompt.String, model.String, errText.String
		r.Elapsed = time.Duration(elapsed)
		r.Submitted = time.Unix(0, submitted)
		if started.Valid {
			r.Started = time.Unix(0, started.Int64)
		}
		r.Settled = time.Unix(0, settled)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
