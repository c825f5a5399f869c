package distlimiter

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestServer starts an in-process miniredis instance and a go-redis client
// pointed at it, closing both on test cleanup. miniredis supports Lua
// scripting, TTLs and blocking list ops, which is why it stands in for Redis
// in this package's tests rather than a mock client.
func newTestServer(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// testName returns a unique, namespace-safe name so parallel tests never
// collide on the same miniredis keys.
func testName(t *testing.T) string {
	t.Helper()
	id, err := uuid.GenerateUUID()
	require.NoError(t, err)
	return t.Name() + "-" + id
}
