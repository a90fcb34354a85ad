package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bargainlabs/dealhound/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock stands in
// for it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":           `INSERT INTO runs (id, status, memory, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status":    `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":              `SELECT id, status, memory, opportunity, summary, error, input_tokens, output_tokens, cost, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_surfaced_deal": `INSERT INTO surfaced_deals (id, run_id, description, price, url, estimate, discount, surfaced_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"list_surfaced_urls":   `SELECT url FROM surfaced_deals GROUP BY url ORDER BY MIN(surfaced_at)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status        TEXT NOT NULL DEFAULT 'queued',
	memory        JSONB,
	opportunity   JSONB,
	summary       TEXT,
	error         TEXT,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS surfaced_deals (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	description TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	url         TEXT NOT NULL,
	estimate    DOUBLE PRECISION NOT NULL,
	discount    DOUBLE PRECISION NOT NULL,
	surfaced_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_surfaced_deals_run_id ON surfaced_deals(run_id);
CREATE INDEX IF NOT EXISTS idx_surfaced_deals_url ON surfaced_deals(url);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, memory []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	memoryJSON, err := json.Marshal(memory)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal memory")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, memory, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.RunStatusQueued), string(memoryJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusQueued,
		Memory:    memory,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	return checkCommandTag(tag, "run", runID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, outcome RunOutcome) error {
	var oppJSON any
	if outcome.Opportunity != nil {
		b, err := json.Marshal(outcome.Opportunity)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal opportunity")
		}
		oppJSON = string(b)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, opportunity = $2, summary = $3, error = $4,
		 input_tokens = $5, output_tokens = $6, cost = $7, updated_at = $8
		 WHERE id = $9`,
		string(outcome.Status), oppJSON, outcome.Summary, outcome.Error,
		outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.Usage.Cost,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	return checkCommandTag(tag, "run", runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, memory, opportunity, summary, error,
		 input_tokens, output_tokens, cost, created_at, updated_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, memory, opportunity, summary, error,
	 input_tokens, output_tokens, cost, created_at, updated_at
	 FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if !filter.CreatedAfter.IsZero() {
		args = append(args, filter.CreatedAfter.UTC())
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) RecordSurfacedDeal(ctx context.Context, runID string, opp model.Opportunity) (*model.SurfacedDeal, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO surfaced_deals (id, run_id, description, price, url, estimate, discount, surfaced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, runID, opp.Deal.Description, opp.Deal.Price, opp.Deal.URL,
		opp.Estimate, opp.Discount, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert surfaced deal for run %s", runID)
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

func (s *PostgresStore) ListSurfacedDeals(ctx context.Context, limit int) ([]model.SurfacedDeal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, description, price, url, estimate, discount, surfaced_at
		 FROM surfaced_deals ORDER BY surfaced_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list surfaced deals")
	}
	defer rows.Close()

	var deals []model.SurfacedDeal
	for rows.Next() {
		var d model.SurfacedDeal
		if err := rows.Scan(&d.ID, &d.RunID, &d.Deal.Description, &d.Deal.Price, &d.Deal.URL,
			&d.Estimate, &d.Discount, &d.SurfacedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan surfaced deal")
		}
		deals = append(deals, d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: list surfaced deals iterate")
}

func (s *PostgresStore) ListSurfacedURLs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url FROM surfaced_deals GROUP BY url ORDER BY MIN(surfaced_at)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list surfaced urls")
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, eris.Wrap(err, "postgres: scan surfaced url")
		}
		urls = append(urls, u)
	}
	return urls, eris.Wrap(rows.Err(), "postgres: list surfaced urls iterate")
}

func (s *PostgresStore) ClearSurfacedDeals(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM surfaced_deals`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear surfaced deals")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func checkCommandTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var memoryJSON, oppJSON, summary, runErr *string

	err := row.Scan(&r.ID, &r.Status, &memoryJSON, &oppJSON, &summary, &runErr,
		&r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.Cost,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if memoryJSON != nil && *memoryJSON != "" {
		if err := json.Unmarshal([]byte(*memoryJSON), &r.Memory); err != nil {
			return nil, eris.Wrap(err, "unmarshal memory")
		}
	}
	if oppJSON != nil && *oppJSON != "" {
		r.Opportunity = &model.Opportunity{}
		if err := json.Unmarshal([]byte(*oppJSON), r.Opportunity); err != nil {
			return nil, eris.Wrap(err, "unmarshal opportunity")
		}
	}
	if summary != nil {
		r.Summary = *summary
	}
	if runErr != nil {
		r.Error = *runErr
	}
	return &r, nil
}
