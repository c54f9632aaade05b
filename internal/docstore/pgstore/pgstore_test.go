package pgstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/subscription-core/internal/docstore"
	"github.com/magabrotheeeer/subscription-core/internal/docstore/docstoretest"
	"github.com/magabrotheeeer/subscription-core/internal/migrations"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Store {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db, migrationsPath))

	return New(db)
}

func TestStore_Conformance(t *testing.T) {
	s := setupTestDatabase(t)
	docstoretest.Run(t, func(t *testing.T) docstore.Store {
		_, err := s.DB.Exec(`TRUNCATE documents`)
		require.NoError(t, err)
		return s
	})
}

func TestStore_MergeKeepsJSONBTypes(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "c", "id", docstore.Fields{"amount": 1000}, false))
	require.NoError(t, s.Update(ctx, "c", "id", docstore.Fields{"status": "active"}))

	var kind string
	err := s.DB.QueryRow(`SELECT jsonb_typeof(doc -> 'amount') FROM documents WHERE id = 'id'`).Scan(&kind)
	require.NoError(t, err)
	assert.Equal(t, "number", kind)
}

func TestPredicate_SQL(t *testing.T) {
	tests := []struct {
		name     string
		op       docstore.Operator
		value    any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "equal",
			op:       docstore.OpEqual,
			value:    "cus_1",
			wantSQL:  "(doc -> ?::text) = ?::jsonb",
			wantArgs: []any{"f", `"cus_1"`},
		},
		{
			name:     "not equal",
			op:       docstore.OpNotEqual,
			value:    int64(5),
			wantSQL:  "(doc -> ?::text) IS DISTINCT FROM ?::jsonb",
			wantArgs: []any{"f", "5"},
		},
		{
			name:     "number ordering",
			op:       docstore.OpGreater,
			value:    int64(1000),
			wantSQL:  "CASE WHEN jsonb_typeof(doc -> ?::text) = 'number' THEN (doc ->> ?::text)::numeric > ?::numeric ELSE FALSE END",
			wantArgs: []any{"f", "f", "1000"},
		},
		{
			name:    "nil equal",
			op:      docstore.OpEqual,
			value:   nil,
			wantSQL: "FALSE",
		},
		{
			name:    "nil not equal",
			op:      docstore.OpNotEqual,
			value:   nil,
			wantSQL: "TRUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := predicate("f", tt.op, tt.value)
			require.NoError(t, err)
			sql, args, err := pred.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, len(tt.wantArgs), len(args))
			for i := range tt.wantArgs {
				assert.Equal(t, tt.wantArgs[i], args[i])
			}
		})
	}
}
