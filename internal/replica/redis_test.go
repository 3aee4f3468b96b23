package replica

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration-style test: runs only if REDIS_ADDR env is set.
func TestRedisTransportIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	session := uuid.NewString()
	open := func(participant int64) (*Session, *Value[int], *Reducer[int, counterAction]) {
		s := NewSession(session, participant, NewRedisTransport(client, session, participant, nil), nil)
		v := NewValue(s, "score", 0)
		r := NewReducer(s, "counter", counterReducer, 0, nil)
		require.NoError(t, s.Open(ctx))
		return s, v, r
	}

	a, aScore, aCounter := open(1)
	defer a.Close()
	b, bScore, _ := open(2)
	defer b.Close()

	require.NoError(t, aScore.Set(ctx, 100))
	require.NoError(t, aCounter.Dispatch(ctx, counterAction{Op: "add", N: 2}))
	require.NoError(t, aCounter.Dispatch(ctx, counterAction{Op: "add", N: 5}))

	assert.Eventually(t, func() bool { return bScore.Get() == 100 }, 3*time.Second, 10*time.Millisecond)

	late, _, lateCounter := open(3)
	defer late.Close()
	assert.Eventually(t, func() bool { return lateCounter.State() == 7 }, 3*time.Second, 10*time.Millisecond)
}
