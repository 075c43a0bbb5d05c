package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/claims-triage/internal/docstore"
	"github.com/sells-group/claims-triage/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_state (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	state      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT NOT NULL UNIQUE,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	type       TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	payload    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	content     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_byte  INTEGER NOT NULL,
	end_byte    INTEGER NOT NULL,
	source_file TEXT NOT NULL,
	vector      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
CREATE INDEX IF NOT EXISTS idx_policy_chunks_document_id ON policy_chunks(document_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveRunState(ctx context.Context, runID string, state []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_state (run_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		runID, string(state), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save run state %s", runID)
}

func (s *SQLiteStore) GetRunState(ctx context.Context, runID string) ([]byte, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM run_state WHERE run_id = ?`, runID,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run state not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run state %s", runID)
	}
	return []byte(state), nil
}

func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, runID string, event model.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit event")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (event_id, run_id, type, recorded_at, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID.String(), runID, string(event.Type), event.Timestamp.UTC(), string(payload),
	)
	return eris.Wrapf(err, "sqlite: append audit event for run %s", runID)
}

func (s *SQLiteStore) ListAuditEvents(ctx context.Context, runID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM audit_events WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audit events for run %s", runID)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit event")
		}
		var ev model.AuditEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal audit event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list audit events iterate")
}

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []docstore.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO policy_chunks (id, document_id, name, type, content, chunk_index, start_byte, end_byte, source_file, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, vector = excluded.vector`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare chunk insert")
	}
	defer stmt.Close()

	for _, c := range chunks {
		vectorJSON, err := json.Marshal(c.Vector)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal vector for chunk %s", c.ID)
		}
		_, err = stmt.ExecContext(ctx,
			c.ID, c.DocumentID.String(), c.Name, c.Type, c.Content,
			c.Index, c.StartByte, c.EndByte, c.SourceFile, string(vectorJSON),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert chunk %s", c.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit chunks")
}

func (s *SQLiteStore) ListChunks(ctx context.Context) ([]docstore.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, name, type, content, chunk_index, start_byte, end_byte, source_file, vector
		 FROM policy_chunks ORDER BY source_file, chunk_index`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chunks")
	}
	defer rows.Close()

	var chunks []docstore.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, eris.Wrap(rows.Err(), "sqlite: list chunks iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	err := row.Scan(&r.ID, &r.Source, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}

func scanChunk(row scannable) (*docstore.Chunk, error) {
	var c docstore.Chunk
	var docID, vectorJSON string
	err := row.Scan(&c.ID, &docID, &c.Name, &c.Type, &c.Content,
		&c.Index, &c.StartByte, &c.EndByte, &c.SourceFile, &vectorJSON)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan chunk")
	}

	id, err := uuid.Parse(docID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse document id for chunk %s", c.ID)
	}
	c.DocumentID = id

	if err := json.Unmarshal([]byte(vectorJSON), &c.Vector); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal vector for chunk %s", c.ID)
	}
	return &c, nil
}
