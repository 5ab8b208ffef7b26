// Package postgres provides a PostgreSQL storage.RunStore. It uses pgx/v5
// for connection pooling and stores the conversation of a run as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/storage"
)

// Store is a PostgreSQL-backed RunStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.RunStore = (*Store)(nil)

// New connects to PostgreSQL and, when MigrateOnStart is set, applies the
// embedded schema migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

const runColumns = `id, task, model, session_id, status, answer, iterations, error, turns, created_at, completed_at`

// SaveRun inserts a finished run.
func (s *Store) SaveRun(ctx context.Context, run *api.Run) error {
	turns := run.Turns
	if turns == nil {
		turns = []api.Turn{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshaling turns: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		run.ID, run.Task, run.Model, run.SessionID, string(run.Status), run.Answer, run.Iterations,
		nullString(run.Error), turnsJSON, run.CreatedAt, nullTime(run.CompletedAt),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns a page of runs using keyset pagination on
// (created_at, id).
func (s *Store) ListRuns(ctx context.Context, opts storage.ListOptions) (*storage.RunList, error) {
	cmp, order := "<", "DESC"
	if opts.Order == "asc" {
		cmp, order = ">", "ASC"
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	var args []any
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if opts.After != "" {
		args = append(args, opts.After)
		query += fmt.Sprintf(" AND (created_at, id) %s (SELECT created_at, id FROM runs WHERE id = $%d)", cmp, len(args))
	}
	limit := opts.EffectiveLimit()
	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT $%d", order, order, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []*api.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	result := &storage.RunList{Data: runs}
	if len(runs) > limit {
		result.Data = runs[:limit]
		result.HasMore = true
	}
	if len(result.Data) > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[len(result.Data)-1].ID
	}
	return result, nil
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (*api.Run, error) {
	var run api.Run
	var status string
	var errText *string
	var turnsJSON []byte
	var completedAt *time.Time

	if err := row.Scan(
		&run.ID, &run.Task, &run.Model, &run.SessionID, &status, &run.Answer, &run.Iterations,
		&errText, &turnsJSON, &run.CreatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	run.Status = api.RunStatus(status)
	if errText != nil {
		run.Error = *errText
	}
	if completedAt != nil {
		run.CompletedAt = *completedAt
	}
	if err := json.Unmarshal(turnsJSON, &run.Turns); err != nil {
		return nil, fmt.Errorf("unmarshaling turns: %w", err)
	}
	return &run, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isDuplicateKey reports a unique violation (SQLSTATE 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
