package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store for single-node and
// local deployments.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers and keeps the pragmas below in effect.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err = db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_jobs (
			id               TEXT PRIMARY KEY,
			owner_id         TEXT NOT NULL,
			status           TEXT NOT NULL,
			progress_message TEXT NOT NULL DEFAULT '',
			frames           TEXT NOT NULL DEFAULT '[]',
			ai_analysis      TEXT,
			ai_completed     INTEGER NOT NULL DEFAULT 0,
			transitions      TEXT NOT NULL DEFAULT '[]',
			video_key        TEXT NOT NULL DEFAULT '',
			version          INTEGER NOT NULL DEFAULT 1,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_analysis_jobs_owner  ON analysis_jobs(owner_id);
		CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);

		CREATE TABLE IF NOT EXISTS api_keys (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			key_hash     TEXT NOT NULL,
			key_prefix   TEXT NOT NULL,
			scopes       TEXT NOT NULL DEFAULT '[]',
			last_used_at TEXT,
			deleted_at   TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
	`)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- API Keys ---

func (s *SQLiteStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		FROM api_keys WHERE key_prefix = ? AND deleted_at IS NULL
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanSQLiteKeys(rows)
}

func (s *SQLiteStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ?, updated_at = ? WHERE id = ?`, now, now, id.String())
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("encode scopes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.ID.String(), key.Name, key.KeyHash, key.KeyPrefix, string(scopes),
		formatTime(key.CreatedAt), formatTime(key.UpdatedAt))
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanSQLiteKeys(rows)
}

func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id.String())
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSQLiteKeys(rows *sql.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var (
			k                   models.APIKey
			id, scopes          string
			created, updated    string
			lastUsed, deletedAt sql.NullString
		)
		if err := rows.Scan(&id, &k.Name, &k.KeyHash, &k.KeyPrefix, &scopes,
			&lastUsed, &deletedAt, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		var err error
		if k.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse api key id: %w", err)
		}
		if err := json.Unmarshal([]byte(scopes), &k.Scopes); err != nil {
			return nil, fmt.Errorf("decode scopes: %w", err)
		}
		k.CreatedAt = parseTime(created)
		k.UpdatedAt = parseTime(updated)
		k.LastUsedAt = parseNullTime(lastUsed)
		k.DeletedAt = parseNullTime(deletedAt)
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Analysis Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	if err := validateNewJob(job); err != nil {
		return err
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	if job.Version == 0 {
		job.Version = 1
	}

	cols, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs
			(id, owner_id, status, progress_message, frames, ai_analysis, ai_completed,
			 transitions, video_key, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.OwnerID, string(job.Status), job.ProgressMessage, string(cols.Frames),
		nullableJSON(cols.AIResult), job.AICompleted, string(cols.Transitions), job.VideoKey,
		job.Version, formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

type sqlRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	return s.getJob(ctx, s.db, id)
}

func (s *SQLiteStore) getJob(ctx context.Context, q sqlRower, id string) (*models.AnalysisJob, error) {
	var (
		j                models.AnalysisJob
		status           string
		frames, trans    string
		aiResult         sql.NullString
		created, updated string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, status, progress_message, frames, ai_analysis, ai_completed,
		       transitions, video_key, version, created_at, updated_at
		FROM analysis_jobs WHERE id = ?
	`, id).Scan(&j.ID, &j.OwnerID, &status, &j.ProgressMessage, &frames, &aiResult, &j.AICompleted,
		&trans, &j.VideoKey, &j.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	cols := jobColumns{Frames: []byte(frames), Transitions: []byte(trans)}
	if aiResult.Valid {
		cols.AIResult = []byte(aiResult.String)
	}
	if err := decodeJob(&j, status, cols); err != nil {
		return nil, err
	}
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	return &j, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, expectedVersion int64, opts ...JobUpdateOption) (*models.AnalysisJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update job: %w", err)
	}
	defer tx.Rollback()

	job, err := s.getJob(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if job.Version != expectedVersion {
		return nil, fmt.Errorf("%w: job %s at version %d, expected %d", ErrVersionConflict, id, job.Version, expectedVersion)
	}

	if err := applyUpdate(job, s.now(), opts...); err != nil {
		return nil, err
	}

	cols, err := encodeJob(job)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE analysis_jobs
		SET status = ?, progress_message = ?, frames = ?, ai_analysis = ?, ai_completed = ?,
		    transitions = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(job.Status), job.ProgressMessage, string(cols.Frames), nullableJSON(cols.AIResult),
		job.AICompleted, string(cols.Transitions), job.Version, formatTime(job.UpdatedAt),
		id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrVersionConflict, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update job: %w", err)
	}
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func isSQLiteConstraint(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY")
}
