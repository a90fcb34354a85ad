package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bargainlabs/dealhound/internal/model"
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
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'queued',
	memory        TEXT,
	opportunity   TEXT,
	summary       TEXT,
	error         TEXT,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS surfaced_deals (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	description TEXT NOT NULL,
	price       REAL NOT NULL,
	url         TEXT NOT NULL,
	estimate    REAL NOT NULL,
	discount    REAL NOT NULL,
	surfaced_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_surfaced_deals_run_id ON surfaced_deals(run_id);
CREATE INDEX IF NOT EXISTS idx_surfaced_deals_url ON surfaced_deals(url);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, memory []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	memoryJSON, err := json.Marshal(memory)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal memory")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, memory, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.RunStatusQueued), string(memoryJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		Memory:    memory,
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

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, outcome RunOutcome) error {
	var oppJSON sql.NullString
	if outcome.Opportunity != nil {
		b, err := json.Marshal(outcome.Opportunity)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal opportunity")
		}
		oppJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, opportunity = ?, summary = ?, error = ?,
		 input_tokens = ?, output_tokens = ?, cost = ?, updated_at = ?
		 WHERE id = ?`,
		string(outcome.Status), oppJSON, outcome.Summary, outcome.Error,
		outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.Usage.Cost,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, memory, opportunity, summary, error,
		 input_tokens, output_tokens, cost, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, memory, opportunity, summary, error,
	 input_tokens, output_tokens, cost, created_at, updated_at
	 FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
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

func (s *SQLiteStore) RecordSurfacedDeal(ctx context.Context, runID string, opp model.Opportunity) (*model.SurfacedDeal, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO surfaced_deals (id, run_id, description, price, url, estimate, discount, surfaced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, opp.Deal.Description, opp.Deal.Price, opp.Deal.URL,
		opp.Estimate, opp.Discount, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert surfaced deal for run %s", runID)
	}

	return &model.SurfacedDeal{
		ID:         id,
		RunID:      runID,
		Deal:       opp.Deal,
		Estimate:   opp.Estimate,
		Discount:   opp.Discount,
		SurfacedAt: now,
	}, nil
}

func (s *SQLiteStore) ListSurfacedDeals(ctx context.Context, limit int) ([]model.SurfacedDeal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, description, price, url, estimate, discount, surfaced_at
		 FROM surfaced_deals ORDER BY surfaced_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list surfaced deals")
	}
	defer rows.Close()

	var deals []model.SurfacedDeal
	for rows.Next() {
		var d model.SurfacedDeal
		if err := rows.Scan(&d.ID, &d.RunID, &d.Deal.Description, &d.Deal.Price, &d.Deal.URL,
			&d.Estimate, &d.Discount, &d.SurfacedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan surfaced deal")
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: list surfaced deals iterate")
}

func (s *SQLiteStore) ListSurfacedURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM surfaced_deals GROUP BY url ORDER BY MIN(surfaced_at)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list surfaced urls")
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan surfaced url")
		}
		urls = append(urls, u)
	}
	return urls, eris.Wrap(rows.Err(), "sqlite: list surfaced urls iterate")
}

func (s *SQLiteStore) ClearSurfacedDeals(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM surfaced_deals`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear surfaced deals")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
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
	var memoryJSON, oppJSON, summary, runErr sql.NullString

	err := row.Scan(&r.ID, &r.Status, &memoryJSON, &oppJSON, &summary, &runErr,
		&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.Cost,
		&r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if memoryJSON.Valid && memoryJSON.String != "" {
		if err := json.Unmarshal([]byte(memoryJSON.String), &r.Memory); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal memory")
		}
	}
	if oppJSON.Valid && oppJSON.String != "" {
		r.Opportunity = &model.Opportunity{}
		if err := json.Unmarshal([]byte(oppJSON.String), r.Opportunity); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal opportunity")
		}
	}
	r.Summary = summary.String
	r.Error = runErr.String
	return &r, nil
}
