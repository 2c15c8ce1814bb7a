package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/status"
)

// FileName is the SQLite database file created inside the database directory.
const FileName = "scanpipe.db"

// StatusDB is the SQLite implementation of the status and findings stores.
type StatusDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures StatusDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that status polling does not
	// block pipeline writes.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the StatusDB inside dbDir.
func Open(dbDir string, opts Options) (*StatusDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	// foreign_keys is per connection in SQLite, so it goes into the DSN and
	// is applied to every connection the pool opens.
	dsn := dbPath + "?mode=" + mode + "&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; the upsert statements below are atomic on their own.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	sdb := &StatusDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return sdb, nil
}

// Path returns the database file path.
func (sdb *StatusDB) Path() string {
	return sdb.dbPath
}

// Close closes the database connection.
func (sdb *StatusDB) Close() error {
	return sdb.db.Close()
}

// Ping checks that the database is reachable.
func (sdb *StatusDB) Ping(ctx context.Context) error {
	return sdb.db.PingContext(ctx)
}

// createTables creates the database schema if it doesn't exist.
func (sdb *StatusDB) createTables() error {
	schema := `
	-- One mutable row per pipeline run
	CREATE TABLE IF NOT EXISTS scan_status (
		request_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		work_unit_id TEXT,
		spk TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_status_work_unit ON scan_status(work_unit_id, spk);

	-- Per-artifact progress, owned by scan_status
	CREATE TABLE IF NOT EXISTS scan_status_detail (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES scan_status(request_id) ON DELETE CASCADE,
		artifact TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(request_id, artifact)
	);

	-- Findings loaded from analyzer reports
	CREATE TABLE IF NOT EXISTS scan_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL REFERENCES scan_status(request_id) ON DELETE CASCADE,
		ait_id TEXT,
		spk TEXT,
		file_key TEXT,
		rule_id TEXT,
		issue TEXT,
		issue_category TEXT,
		title TEXT,
		description TEXT,
		links TEXT,
		application TEXT,
		file_name TEXT,
		file_path TEXT,
		line INTEGER,
		story_points INTEGER,
		parent_application TEXT,
		created_dt TEXT NOT NULL,
		modified_dt TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scan_data_request ON scan_data(request_id);
	`

	_, err := sdb.db.ExecContext(context.Background(), schema)
	return err
}

// UpsertStatus inserts or updates the status row of a run in one statement.
// Identity columns keep their stored value when the update leaves them nil.
func (sdb *StatusDB) UpsertStatus(ctx context.Context, u model.StatusUpdate) error {
	now := formatTimestamp(time.Now())

	query := `
	INSERT INTO scan_status (request_id, status, notes, work_unit_id, spk, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(request_id) DO UPDATE SET
		status = excluded.status,
		notes = excluded.notes,
		work_unit_id = COALESCE(excluded.work_unit_id, scan_status.work_unit_id),
		spk = COALESCE(excluded.spk, scan_status.spk),
		updated_at = excluded.updated_at
	`

	_, err := sdb.db.ExecContext(ctx, query,
		u.RequestID.String(),
		u.Status,
		u.Notes,
		nullable(u.WorkUnitID),
		nullable(u.SPK),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert scan status: %w", err)
	}
	return nil
}

// GetStatus returns the status row of a run.
func (sdb *StatusDB) GetStatus(ctx context.Context, requestID uuid.UUID) (*model.RunStatus, error) {
	query := `
	SELECT request_id, status, notes, work_unit_id, spk, created_at, updated_at
	FROM scan_status
	WHERE request_id = ?
	`

	rs, err := scanStatus(sdb.db.QueryRowContext(ctx, query, requestID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan status: %w", err)
	}
	return rs, nil
}

// ListStatuses returns the runs of a work unit, newest first.
// An empty spk matches every SPK.
func (sdb *StatusDB) ListStatuses(ctx context.Context, workUnitID, spk string) ([]model.RunStatus, error) {
	query := `
	SELECT request_id, status, notes, work_unit_id, spk, created_at, updated_at
	FROM scan_status
	WHERE work_unit_id = ? AND (? = '' OR spk = ?)
	ORDER BY created_at DESC
	`

	rows, err := sdb.db.QueryContext(ctx, query, workUnitID, spk, spk)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan statuses: %w", err)
	}
	defer rows.Close()

	var statuses []model.RunStatus
	for rows.Next() {
		rs, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		statuses = append(statuses, *rs)
	}
	return statuses, rows.Err()
}

// DeleteStatus removes a run. Detail rows and findings go with it.
func (sdb *StatusDB) DeleteStatus(ctx context.Context, requestID uuid.UUID) error {
	res, err := sdb.db.ExecContext(ctx, "DELETE FROM scan_status WHERE request_id = ?", requestID.String())
	if err != nil {
		return fmt.Errorf("failed to delete scan status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return status.ErrNotFound
	}
	return nil
}

// UpsertDetail inserts or updates the status of one artifact of a run.
func (sdb *StatusDB) UpsertDetail(ctx context.Context, d model.StatusDetail) error {
	query := `
	INSERT INTO scan_status_detail (id, request_id, artifact, status, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(request_id, artifact) DO UPDATE SET
		status = excluded.status,
		updated_at = excluded.updated_at
	`

	_, err := sdb.db.ExecContext(ctx, query,
		d.ID.String(),
		d.ParentRequestID.String(),
		d.Artifact,
		d.Status,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert status detail: %w", err)
	}
	return nil
}

// ListDetails returns the artifact rows of a run ordered by artifact.
func (sdb *StatusDB) ListDetails(ctx context.Context, requestID uuid.UUID) ([]model.StatusDetail, error) {
	query := `
	SELECT id, request_id, artifact, status, updated_at
	FROM scan_status_detail
	WHERE request_id = ?
	ORDER BY artifact
	`

	rows, err := sdb.db.QueryContext(ctx, query, requestID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list status details: %w", err)
	}
	defer rows.Close()

	var details []model.StatusDetail
	for rows.Next() {
		var (
			d                   model.StatusDetail
			id, parent, updated string
		)
		if err := rows.Scan(&id, &parent, &d.Artifact, &d.Status, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan detail row: %w", err)
		}
		d.ID, _ = uuid.Parse(id)
		d.ParentRequestID, _ = uuid.Parse(parent)
		d.UpdatedAt = parseTimestamp(updated)
		details = append(details, d)
	}
	return details, rows.Err()
}

// InsertFindings writes one batch of findings in a single transaction.
func (sdb *StatusDB) InsertFindings(ctx context.Context, findings []model.Finding) (err error) {
	if len(findings) == 0 {
		return nil
	}

	tx, err := sdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO scan_data (
		request_id, ait_id, spk, file_key, rule_id, issue, issue_category, title,
		description, links, application, file_name, file_path, line, story_points,
		parent_application, created_dt, modified_dt
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := formatTimestamp(time.Now())
	for _, f := range findings {
		if _, err = stmt.ExecContext(ctx,
			f.RequestID.String(), f.WorkUnitID, f.SPK, f.FileKey, f.RuleID, f.Issue, f.Category,
			f.Title, f.Description, f.Links, f.Application, f.FileName, f.FilePath, f.Line,
			f.StoryPoints, f.ParentApplication, now, now,
		); err != nil {
			return fmt.Errorf("failed to insert finding %s: %w", f.RuleID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit findings: %w", err)
	}
	return nil
}

// ListFindings returns the findings of a run in insertion order.
// limit <= 0 returns all of them.
func (sdb *StatusDB) ListFindings(ctx context.Context, requestID uuid.UUID, limit int) ([]model.Finding, error) {
	query := `
	SELECT id, request_id, ait_id, spk, file_key, rule_id, issue, issue_category, title,
		description, links, application, file_name, file_path, line, story_points,
		parent_application, created_dt
	FROM scan_data
	WHERE request_id = ?
	ORDER BY id
	LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := sdb.db.QueryContext(ctx, query, requestID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var (
			f           model.Finding
			reqID, crea string
		)
		if err := rows.Scan(&f.ID, &reqID, &f.WorkUnitID, &f.SPK, &f.FileKey, &f.RuleID, &f.Issue,
			&f.Category, &f.Title, &f.Description, &f.Links, &f.Application, &f.FileName,
			&f.FilePath, &f.Line, &f.StoryPoints, &f.ParentApplication, &crea); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.RequestID, _ = uuid.Parse(reqID)
		f.CreatedAt = parseTimestamp(crea)
		out = append(out, f)
	}
	return out, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatus(row rowScanner) (*model.RunStatus, error) {
	var (
		rs                  model.RunStatus
		id, created, update string
		workUnit, spk       sql.NullString
	)
	if err := row.Scan(&id, &rs.Status, &rs.Notes, &workUnit, &spk, &created, &update); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid request id %q: %w", id, err)
	}
	rs.RequestID = parsed
	rs.WorkUnitID = workUnit.String
	rs.SPK = spk.String
	rs.CreatedAt = parseTimestamp(created)
	rs.UpdatedAt = parseTimestamp(update)
	return &rs, nil
}

// nullable converts an optional string into a SQL NULL when absent.
func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// timestampLayout has fixed width so that text order equals time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// formatTimestamp stores times as sortable UTC text.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp parses a timestamp string from SQLite.
// It accepts what formatTimestamp writes plus SQLite's own CURRENT_TIMESTAMP
// form, and returns the zero time for anything else.
func parseTimestamp(s string) time.Time {
	formats := []string{
		timestampLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
