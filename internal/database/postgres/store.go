package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/status"
)

// Store is the postgres implementation of the status and findings stores.
type Store struct {
	pool *pgxpool.Pool
}

type options struct {
	password string
	maxConns int32
	migrate  bool
}

// Option configures Connect.
type Option func(*options)

// WithPassword overrides the password of the connection string.
func WithPassword(password string) Option {
	return func(o *options) {
		o.password = password
	}
}

// WithMaxConns sets the pool size. Non-positive values keep the default of 10.
func WithMaxConns(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// WithMigrations controls whether Connect applies pending migrations.
// It defaults to true.
func WithMigrations(enabled bool) Option {
	return func(o *options) {
		o.migrate = enabled
	}
}

// Connect opens a pool, verifies it with a ping and applies migrations.
func Connect(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o := options{maxConns: 10, migrate: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if o.password != "" {
		cfg.ConnConfig.Password = o.password
	}
	cfg.MaxConns = o.maxConns
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if o.migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertStatus inserts or updates a status row in one statement.
func (s *Store) UpsertStatus(ctx context.Context, u model.StatusUpdate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_status (request_id, status, notes, work_unit_id, spk)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			work_unit_id = COALESCE(EXCLUDED.work_unit_id, scan_status.work_unit_id),
			spk = COALESCE(EXCLUDED.spk, scan_status.spk),
			updated_at = now()
	`, u.RequestID, u.Status, u.Notes, u.WorkUnitID, u.SPK)
	if err != nil {
		return fmt.Errorf("failed to upsert scan status: %w", err)
	}
	return nil
}

const selectStatus = `
	SELECT request_id, status, notes, work_unit_id, spk, created_at, updated_at
	FROM scan_status
`

func scanStatus(row pgx.Row) (*model.RunStatus, error) {
	var (
		rs            model.RunStatus
		workUnit, spk *string
	)
	if err := row.Scan(&rs.RequestID, &rs.Status, &rs.Notes, &workUnit, &spk, &rs.CreatedAt, &rs.UpdatedAt); err != nil {
		return nil, err
	}
	if workUnit != nil {
		rs.WorkUnitID = *workUnit
	}
	if spk != nil {
		rs.SPK = *spk
	}
	return &rs, nil
}

// GetStatus returns the status row of a run.
func (s *Store) GetStatus(ctx context.Context, requestID uuid.UUID) (*model.RunStatus, error) {
	rs, err := scanStatus(s.pool.QueryRow(ctx, selectStatus+` WHERE request_id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan status: %w", err)
	}
	return rs, nil
}

// ListStatuses returns the runs of a work unit, newest first.
func (s *Store) ListStatuses(ctx context.Context, workUnitID, spk string) ([]model.RunStatus, error) {
	rows, err := s.pool.Query(ctx, selectStatus+`
		WHERE work_unit_id = $1 AND ($2 = '' OR spk = $2)
		ORDER BY created_at DESC
	`, workUnitID, spk)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan statuses: %w", err)
	}
	defer rows.Close()

	var out []model.RunStatus
	for rows.Next() {
		rs, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		out = append(out, *rs)
	}
	return out, rows.Err()
}

// DeleteStatus removes a run; details and findings cascade.
func (s *Store) DeleteStatus(ctx context.Context, requestID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scan_status WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("failed to delete scan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return status.ErrNotFound
	}
	return nil
}

// UpsertDetail writes the status of one artifact of a run.
func (s *Store) UpsertDetail(ctx context.Context, d model.StatusDetail) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_status_detail (id, request_id, artifact, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id, artifact) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = now()
	`, d.ID, d.ParentRequestID, d.Artifact, d.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert status detail: %w", err)
	}
	return nil
}

// ListDetails returns the artifact rows of a run ordered by artifact.
func (s *Store) ListDetails(ctx context.Context, requestID uuid.UUID) ([]model.StatusDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, artifact, status, updated_at
		FROM scan_status_detail
		WHERE request_id = $1
		ORDER BY artifact
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status details: %w", err)
	}
	defer rows.Close()

	var out []model.StatusDetail
	for rows.Next() {
		var d model.StatusDetail
		if err := rows.Scan(&d.ID, &d.ParentRequestID, &d.Artifact, &d.Status, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detail row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var findingColumns = []string{
	"request_id", "ait_id", "spk", "file_key", "rule_id", "issue", "issue_category", "title",
	"description", "links", "application", "file_name", "file_path", "line", "story_points",
	"parent_application",
}

// InsertFindings copies one batch into scan_data. COPY is atomic per call.
func (s *Store) InsertFindings(ctx context.Context, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"scan_data"}, findingColumns,
		pgx.CopyFromSlice(len(findings), func(i int) ([]any, error) {
			f := findings[i]
			return []any{
				f.RequestID, f.WorkUnitID, f.SPK, f.FileKey, f.RuleID, f.Issue, f.Category, f.Title,
				f.Description, f.Links, f.Application, f.FileName, f.FilePath, int32(f.Line),
				int32(f.StoryPoints), f.ParentApplication,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy findings: %w", err)
	}
	return nil
}

// ListFindings returns the findings of a run in insertion order.
func (s *Store) ListFindings(ctx context.Context, requestID uuid.UUID, limit int) ([]model.Finding, error) {
	query := `
		SELECT id, request_id, ait_id, spk, file_key, rule_id, issue, issue_category, title,
			description, links, application, file_name, file_path, line, story_points,
			parent_application, created_dt
		FROM scan_data
		WHERE request_id = $1
		ORDER BY id
	`
	args := []any{requestID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var (
			f                 model.Finding
			line, storyPoints int32
		)
		if err := rows.Scan(&f.ID, &f.RequestID, &f.WorkUnitID, &f.SPK, &f.FileKey, &f.RuleID,
			&f.Issue, &f.Category, &f.Title, &f.Description, &f.Links, &f.Application,
			&f.FileName, &f.FilePath, &line, &storyPoints, &f.ParentApplication, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Line = int(line)
		f.StoryPoints = int(storyPoints)
		out = append(out, f)
	}
	return out, rows.Err()
}
