//go:build integration

package internal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/schemata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRegistryPostgres runs a throwaway postgres container and returns a
// pool connected to it. The test is skipped when docker is unavailable.
func startRegistryPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_USER":     "postgres",
				"POSTGRES_DB":       "registry",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skipping registry integration test: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:password@%s:%s/registry?sslmode=disable", host, mapped.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	return pool
}

func TestPostgresRegistryIntegration(t *testing.T) {
	ctx := context.Background()
	pool := startRegistryPostgres(t, ctx)

	require.NoError(t, MigrateRegistry(ctx, pool))
	require.NoError(t, MigrateRegistry(ctx, pool), "migrations are idempotent")
	r := NewPostgresRegistry(pool)

	alice := &schemata.UserAccount{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, r.CreateUser(ctx, alice))
	assert.NotZero(t, alice.ID)

	byName, err := r.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	app := &schemata.AppRecord{OwnerID: alice.ID, Name: "todo", Handle: "alice-todo", AdminToken: "token"}
	require.NoError(t, r.CreateApp(ctx, app))
	require.NoError(t, r.AppendEvent(ctx, app.ID, "create todo"))
	require.NoError(t, r.AppendEvent(ctx, app.ID, "sync todo"))

	got, err := r.GetApp(ctx, "alice-todo")
	require.NoError(t, err)
	assert.Equal(t, "token", got.AdminToken)

	events, err := r.ListEvents(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "sync todo", events[1].Content)

	require.NoError(t, r.DeleteUser(ctx, alice.ID))
	_, err = r.GetApp(ctx, "alice-todo")
	assert.True(t, schemata.IsType(err, schemata.ErrorTypeNotFound), "apps are deleted with their owner")
}
