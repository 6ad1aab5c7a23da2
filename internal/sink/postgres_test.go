package sink_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-registry-bridge/database"
	"github.com/stacklok/toolhive-registry-bridge/internal/sink"
)

// THV_BRIDGE_TEST_DATABASE_URL must point at a disposable database; the test migrates it and
// truncates bridge_instances.
func TestPostgresSink(t *testing.T) {
	connString := os.Getenv("THV_BRIDGE_TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("THV_BRIDGE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	require.NoError(t, database.MigrateUp(connString))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE bridge_instances")
	require.NoError(t, err)

	runReadWriterContract(t, sink.NewPostgresSink(pool))
}
