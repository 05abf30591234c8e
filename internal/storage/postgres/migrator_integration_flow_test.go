package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type migrationState struct {
	version int64
	count   int
}

func currentMigrationState(t *testing.T, ctx context.Context, store *Store) migrationState {
	t.Helper()
	version, count, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	return migrationState{version: version, count: count}
}

func TestMigrator_PostgresUpDownSequence(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateDown(ctx, 100), "reset schema")
	require.Equal(t, migrationState{}, currentMigrationState(t, ctx, store))

	steps := []struct {
		name string
		run  func() error
		want migrationState
	}{
		{"up one step", func() error { return store.MigrateUp(ctx, 1) }, migrationState{1, 1}},
		{"up the rest", func() error { return store.MigrateUp(ctx, 0) }, migrationState{3, 3}},
		{"up is idempotent", func() error { return store.MigrateUp(ctx, 0) }, migrationState{3, 3}},
		{"down one step", func() error { return store.MigrateDown(ctx, 1) }, migrationState{2, 2}},
		{"down with zero steps rolls back one", func() error { return store.MigrateDown(ctx, 0) }, migrationState{1, 1}},
		{"down the rest", func() error { return store.MigrateDown(ctx, 5) }, migrationState{}},
		{"down on empty schema", func() error { return store.MigrateDown(ctx, 1) }, migrationState{}},
	}
	for _, step := range steps {
		require.NoError(t, step.run(), step.name)
		assert.Equal(t, step.want, currentMigrationState(t, ctx, store), step.name)
	}

	// оставляем схему в рабочем состоянии для остальных тестов
	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestMigrator_NilStoreAndUnknownDirection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var nilStore *Store
	assert.ErrorIs(t, nilStore.MigrateUp(ctx, 0), errStoreNotInitialized)
	assert.ErrorIs(t, nilStore.MigrateDown(ctx, 1), errStoreNotInitialized)
	_, _, err := nilStore.MigrationStatus(ctx)
	assert.ErrorIs(t, err, errStoreNotInitialized)

	store := openRawPostgresStoreForIntegrationTest(t)
	assert.ErrorContains(t, store.migrate(ctx, migrationDirection("sideways"), 0), "unsupported migration direction")
}

func TestMigrator_DetectsModifiedMigration(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var original string
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT checksum FROM checkout_schema_migrations WHERE version = 1`).Scan(&original))

	_, err := store.DB().ExecContext(ctx, `UPDATE checkout_schema_migrations SET checksum = 'edited' WHERE version = 1`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.DB().ExecContext(context.Background(),
			`UPDATE checkout_schema_migrations SET checksum = $1 WHERE version = 1`, original)
	})

	require.ErrorIs(t, store.MigrateUp(ctx, 0), ErrMigrationModified)
}
