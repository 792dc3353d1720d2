package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("swing_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "swing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against the SQLite store and, outside -short, against Postgres.
func forEachStore(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteStore(t))
	})
	t.Run("postgres", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping integration test")
		}
		fn(t, store.NewPostgresStore(setupTestDB(t)))
	})
}

func sampleFrames(n int) []models.Frame {
	frames := make([]models.Frame, n)
	for i := range frames {
		frames[i] = models.Frame{
			Phase:       "P" + string(rune('1'+i%9)) + "_phase",
			URL:         "https://frames.example.com/f.jpg",
			FrameNumber: i,
		}
	}
	return frames
}

func newJob(status models.Status, frames []models.Frame) *models.AnalysisJob {
	return &models.AnalysisJob{
		ID:              uuid.NewString(),
		OwnerID:         "user-" + uuid.NewString()[:8],
		Status:          status,
		ProgressMessage: "Upload received",
		Frames:          frames,
	}
}

// --- Jobs ---

func TestJob_CreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusCompleted, sampleFrames(3))
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.OwnerID, got.OwnerID)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.Len(t, got.Frames, 3)
		assert.Nil(t, got.AIResult)
		assert.False(t, got.AICompleted)
		assert.False(t, got.CreatedAt.IsZero())
	})
}

func TestJob_GetNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		_, err := s.GetJob(context.Background(), "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestJob_CreateDuplicate(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusStarted, nil)
		require.NoError(t, s.CreateJob(ctx, job))

		dup := newJob(models.StatusStarted, nil)
		dup.ID = job.ID
		assert.ErrorIs(t, s.CreateJob(ctx, dup), store.ErrDuplicateKey)
	})
}

func TestJob_CreateRejectsUnknownStatus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		job := newJob(models.Status("QUEUED"), nil)
		assert.ErrorIs(t, s.CreateJob(context.Background(), job), models.ErrUnknownStatus)
	})
}

func TestJob_FullLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusStarted, nil)
		require.NoError(t, s.CreateJob(ctx, job))

		j, err := s.UpdateJob(ctx, job.ID, 1,
			store.WithStatus(models.StatusProcessing, "extraction started"),
			store.WithProgressMessage("Extracting frames"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), j.Version)

		j, err = s.UpdateJob(ctx, job.ID, j.Version,
			store.WithFrames(sampleFrames(5)),
			store.WithStatus(models.StatusCompleted, "frames extracted"))
		require.NoError(t, err)

		j, err = s.UpdateJob(ctx, job.ID, j.Version,
			store.WithStatus(models.StatusAIProcessing, "trigger"),
			store.WithProgressMessage("AI analysis in progress"))
		require.NoError(t, err)

		result := models.AIResult{Narrative: "Great tempo.", FramesAnalyzed: 5, BatchesProcessed: 1, TokensUsed: 900}
		j, err = s.UpdateJob(ctx, job.ID, j.Version,
			store.WithStatus(models.StatusAICompleted, "analysis complete"),
			store.WithAIResult(result),
			store.WithProgressMessage("Analysis complete"))
		require.NoError(t, err)

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAICompleted, got.Status)
		assert.True(t, got.AICompleted)
		require.NotNil(t, got.AIResult)
		assert.Equal(t, "Great tempo.", got.AIResult.Narrative)
		assert.Equal(t, 900, got.AIResult.TokensUsed)
		assert.Equal(t, int64(5), got.Version)
		require.Len(t, got.Transitions, 4)
		assert.Equal(t, models.StatusStarted, got.Transitions[0].From)
		assert.Equal(t, models.StatusAICompleted, got.Transitions[3].To)
	})
}

func TestJob_UpdateVersionConflict(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusFailed, sampleFrames(2))
		require.NoError(t, s.CreateJob(ctx, job))

		_, err := s.UpdateJob(ctx, job.ID, 1, store.WithStatus(models.StatusAIProcessing, "retrying"))
		require.NoError(t, err)

		_, err = s.UpdateJob(ctx, job.ID, 1, store.WithStatus(models.StatusAIProcessing, "retrying"))
		assert.ErrorIs(t, err, store.ErrVersionConflict)
	})
}

func TestJob_UpdateConcurrentClaimsOnlyOneWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusFailed, sampleFrames(2))
		require.NoError(t, s.CreateJob(ctx, job))

		const claimers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdateJob(ctx, job.ID, 1,
					store.WithStatus(models.StatusAIProcessing, "retrying"),
					store.WithProgressMessage("retrying"))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

func TestJob_UpdateInvalidTransition(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusProcessing, nil)
		require.NoError(t, s.CreateJob(ctx, job))

		_, err := s.UpdateJob(ctx, job.ID, 1, store.WithStatus(models.StatusAICompleted, ""),
			store.WithAIResult(models.AIResult{Narrative: "x"}))
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})
}

func TestJob_UpdateCompletedJobRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		job := newJob(models.StatusAIProcessing, sampleFrames(1))
		require.NoError(t, s.CreateJob(ctx, job))

		done, err := s.UpdateJob(ctx, job.ID, 1,
			store.WithStatus(models.StatusAICompleted, "done"),
			store.WithAIResult(models.AIResult{Narrative: "x"}))
		require.NoError(t, err)

		_, err = s.UpdateJob(ctx, job.ID, done.Version, store.WithProgressMessage("again"))
		assert.ErrorIs(t, err, store.ErrInvariant)
	})
}

func TestJob_UpdateNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		_, err := s.UpdateJob(context.Background(), "missing", 1, store.WithProgressMessage("x"))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

// --- API Keys ---

func TestAPIKey_CreateGetRevoke(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC()
		key := &models.APIKey{
			ID:        uuid.New(),
			Name:      "frame-extractor",
			KeyHash:   "$2a$10$hash",
			KeyPrefix: "sw_abcde",
			Scopes:    []string{models.ScopeTrigger, models.ScopeIntake},
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.CreateAPIKey(ctx, key))

		keys, err := s.GetAPIKeyByPrefix(ctx, "sw_abcde")
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, key.ID, keys[0].ID)
		assert.ElementsMatch(t, key.Scopes, keys[0].Scopes)

		require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
		listed, err := s.ListAPIKeys(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.NotNil(t, listed[0].LastUsedAt)

		require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
		keys, err = s.GetAPIKeyByPrefix(ctx, "sw_abcde")
		require.NoError(t, err)
		assert.Empty(t, keys)

		assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound)
	})
}

func TestAPIKey_DuplicateID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC()
		key := &models.APIKey{ID: uuid.New(), Name: "a", KeyHash: "h", KeyPrefix: "sw_00000",
			Scopes: []string{models.ScopeRead}, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateAPIKey(ctx, key))
		assert.ErrorIs(t, s.CreateAPIKey(ctx, key), store.ErrDuplicateKey)
	})
}

func TestPing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		assert.NoError(t, s.Ping(context.Background()))
	})
}
