package control

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tetris_together/internal/game"
	"tetris_together/internal/replica"
)

func TestDriverPlaysSharedGame(t *testing.T) {
	ctx := context.Background()
	bus := replica.NewLocalBus()

	s := replica.NewSession("room", 1, bus.Connect("room", 1), nil)
	g := game.New(s, game.Options{Rand: rand.New(rand.NewPCG(1, 1))})
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	d := NewDriver(g, Options{})
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	require.NoError(t, g.Start(ctx))
	d.HandleKey(KeyDown, true, false)
	assert.Eventually(t, func() bool { return g.Drop().Row >= 2 }, 2*time.Second, 5*time.Millisecond)

	d.Stop()
	require.NoError(t, <-errc)
	assert.Equal(t, game.Normal, g.Speed())
}
