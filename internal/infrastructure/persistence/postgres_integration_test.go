//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/migration"
)

// newPostgresTestDB starts a postgres container and applies the embedded
// migrations, so the stores run against the production schema
func newPostgresTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("syncbridge_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.New(sqlDB, "", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.GreaterOrEqual(t, version, uint(3))
	require.NoError(t, m.Close())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if d, err := db.DB(); err == nil {
			_ = d.Close()
		}
	})
	return db
}

func TestPostgres_SyncEntityStore(t *testing.T) {
	db := newPostgresTestDB(t)
	store := NewGormSyncEntityStore(db)
	ctx := context.Background()

	e := testEntity("9001", integration.OrderStatusInProduction)
	e.Fields["quantity"] = 3
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{e}))

	updated := testEntity("9001", integration.OrderStatusCompleted)
	require.NoError(t, store.SaveBatch(ctx, []*integration.SyncEntity{updated}))

	got, err := store.Get(ctx, e.Key())
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, integration.OrderStatusCompleted, got.CanonicalStatus)
	assert.Equal(t, []string{"li-1", "li-2"}, got.ChildIDs)

	require.NoError(t, store.SetMetadata(ctx, e.Key(), integration.SyncMetadata{
		SyncStatus:            integration.SyncStatusDisabled,
		ConsecutiveErrorCount: 10,
	}))
	pollable, err := store.ListPollable(ctx, integration.PollableQuery{EntityType: integration.EntityTypeOrder, AccountID: "acct-1"})
	require.NoError(t, err)
	assert.Empty(t, pollable)
}

func TestPostgres_ConcurrentUpsertsKeepOneRow(t *testing.T) {
	db := newPostgresTestDB(t)
	store := NewGormSyncEntityStore(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.SaveBatch(ctx, []*integration.SyncEntity{testEntity("race", integration.OrderStatusNew)})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Table("sync_entities").Where("external_id = ?", "race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPostgres_WatermarkAndRuns(t *testing.T) {
	db := newPostgresTestDB(t)
	ctx := context.Background()

	watermarks := NewGormWatermarkRepository(db)
	w := integration.NewWatermark(integration.EntityTypeProof, "ws-1")
	w.Advance(integration.WatermarkMark{Time: time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, watermarks.Save(ctx, w))
	got, err := watermarks.Get(ctx, integration.EntityTypeProof, "ws-1")
	require.NoError(t, err)
	assert.True(t, w.HighTime.Equal(got.HighTime))

	runs := NewGormSyncRunRepository(db)
	run := integration.NewSyncRun(integration.EntityTypeProof, "ws-1", integration.SyncModeIncremental)
	run.Summary.Add(integration.OutcomeUpdated)
	run.Finish(nil, false)
	require.NoError(t, runs.Save(ctx, run))
	recent, err := runs.ListRecent(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 1, recent[0].Summary.Updated)
}
