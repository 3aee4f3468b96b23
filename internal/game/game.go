package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"tetris_together/internal/replica"
	"tetris_together/internal/tetris"
)

// Replicated keys of one game.
const (
	KeyScore      = "score"
	KeyUpcoming   = "upcomingBlocks"
	KeyCommitting = "isCommitting"
	KeyPlaying    = "isPlaying"
	KeyTickSpeed  = "tickSpeed"
	KeyDropping   = "dropping"
	KeyBoard      = "boardReducer"
)

// UpcomingLen is the length of the upcoming-block queue.
const UpcomingLen = 3

type Options struct {
	// Height of the board; tetris.DefaultHeight when zero.
	Height int
	// Rand draws new blocks; the global source when nil.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Game is one participant's replica of a shared game. Every field lives in the
// session; Game only computes the next values from the latest delivered ones.
type Game struct {
	s      *replica.Session
	log    *slog.Logger
	height int

	score      *replica.Value[int]
	upcoming   *replica.Value[[]tetris.Block]
	committing *replica.Value[bool]
	playing    *replica.Value[bool]
	speed      *replica.Value[TickSpeed]
	drops      *replica.PerUser[tetris.Drop]
	board      *replica.Reducer[BoardState, BoardAction]
	mine       *replica.Slot[tetris.Drop]

	// mu serializes the operations of this replica
	mu sync.Mutex

	rmu sync.Mutex
	rnd *rand.Rand
}

// New registers the game's keys on s. The caller opens the session afterwards.
func New(s *replica.Session, opts Options) *Game {
	if opts.Height <= 0 {
		opts.Height = tetris.DefaultHeight
	}
	log := opts.Logger
	if log == nil {
		log = s.Logger()
	}

	g := &Game{
		s:          s,
		log:        log.With("component", "game"),
		height:     opts.Height,
		rnd:        opts.Rand,
		score:      replica.NewValue(s, KeyScore, 0),
		upcoming:   replica.NewValue(s, KeyUpcoming, []tetris.Block{}),
		committing: replica.NewValue(s, KeyCommitting, false),
		playing:    replica.NewValue(s, KeyPlaying, false),
		speed:      replica.NewValue(s, KeyTickSpeed, Stopped),
		drops:      replica.NewPerUser(s, KeyDropping, tetris.SpawnDrop(tetris.I)),
		board:      replica.NewReducer[BoardState, BoardAction](s, KeyBoard, boardReducer, BoardState{}, boardCodec{}),
	}
	g.mine = g.drops.Mine()

	// every replica spawns its own piece when a game starts, whoever started it
	g.board.OnApply(func(_, _ BoardState, a BoardAction) {
		if _, ok := a.(StartAction); !ok {
			return
		}
		drop := tetris.SpawnDrop(g.draw())
		if err := g.mine.Set(context.Background(), drop); err != nil {
			g.log.Warn("Game.spawn: failed", "error", err)
		}
	})
	return g
}

func (g *Game) draw() tetris.Block {
	g.rmu.Lock()
	defer g.rmu.Unlock()
	return tetris.RandomBlock(g.rnd)
}

// Start resets the shared game and begins play.
func (g *Game) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	queue := make([]tetris.Block, UpcomingLen)
	for i := range queue {
		queue[i] = g.draw()
	}
	if err := g.score.Set(ctx, 0); err != nil {
		return fmt.Errorf("game: start: %w", err)
	}
	if err := g.upcoming.Set(ctx, queue); err != nil {
		return fmt.Errorf("game: start: %w", err)
	}
	if err := g.committing.Set(ctx, false); err != nil {
		return fmt.Errorf("game: start: %w", err)
	}
	if err := g.playing.Set(ctx, true); err != nil {
		return fmt.Errorf("game: start: %w", err)
	}
	if err := g.speed.Set(ctx, Normal); err != nil {
		return fmt.Errorf("game: start: %w", err)
	}
	if err := g.board.Dispatch(ctx, StartAction{Height: g.height}); err != nil {
		return fmt.Errorf("game: start: %w", err)
	}
	g.log.Info("Game.Start: new game", "upcoming", fmt.Sprint(queue))
	return nil
}

// End stops the game for every participant.
func (g *Game) End(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gameOver(ctx)
}

func (g *Game) gameOver(ctx context.Context) error {
	if err := g.speed.Set(ctx, Stopped); err != nil {
		return fmt.Errorf("game: end: %w", err)
	}
	if err := g.playing.Set(ctx, false); err != nil {
		return fmt.Errorf("game: end: %w", err)
	}
	g.log.Info("Game.End: game over", "score", g.score.Get())
	return nil
}

// Tick advances gravity by one step for this participant's piece.
func (g *Game) Tick(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.playing.Get() {
		return nil
	}
	if g.committing.Get() {
		return g.commit(ctx)
	}

	drop := g.mine.Get()
	if drop.Collides(g.board.State().Board, 1, 0) {
		// grace period: one more short tick before the piece locks
		if err := g.speed.Set(ctx, Sliding); err != nil {
			return fmt.Errorf("game: tick: %w", err)
		}
		if err := g.committing.Set(ctx, true); err != nil {
			return fmt.Errorf("game: tick: %w", err)
		}
		return nil
	}
	drop.Row++
	if err := g.mine.Set(ctx, drop); err != nil {
		return fmt.Errorf("game: tick: %w", err)
	}
	return nil
}

// Commit locks this participant's piece onto the board, unless it can still fall.
func (g *Game) Commit(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.playing.Get() {
		return nil
	}
	return g.commit(ctx)
}

func (g *Game) commit(ctx context.Context) error {
	board := g.board.State().Board
	drop := g.mine.Get()

	if !drop.Collides(board, 1, 0) {
		// moved off its support during the grace period
		if err := g.committing.Set(ctx, false); err != nil {
			return fmt.Errorf("game: commit: %w", err)
		}
		if err := g.speed.Set(ctx, Normal); err != nil {
			return fmt.Errorf("game: commit: %w", err)
		}
		return nil
	}

	stamped := board.Clone()
	tetris.Stamp(stamped, drop.Block, drop.Shape, drop.Row, drop.Column)
	next, cleared := tetris.ClearFullRows(stamped)
	points := tetris.Points(cleared)

	queue := slices.Clone(g.upcoming.Get())
	if len(queue) == 0 {
		queue = []tetris.Block{g.draw()}
	}
	newBlock := queue[len(queue)-1]
	queue = append([]tetris.Block{g.draw()}, queue[:len(queue)-1]...)

	spawn := tetris.SpawnDrop(newBlock)
	over := spawn.Collides(next, 0, 0)

	if over {
		if err := g.gameOver(ctx); err != nil {
			return fmt.Errorf("game: commit: %w", err)
		}
	} else if err := g.speed.Set(ctx, Normal); err != nil {
		return fmt.Errorf("game: commit: %w", err)
	}
	if err := g.upcoming.Set(ctx, queue); err != nil {
		return fmt.Errorf("game: commit: %w", err)
	}
	if err := g.score.Set(ctx, g.score.Get()+points); err != nil {
		return fmt.Errorf("game: commit: %w", err)
	}
	if err := g.board.Dispatch(ctx, CommitAction{Board: next, NewBlock: newBlock}); err != nil {
		return fmt.Errorf("game: commit: %w", err)
	}
	if !over {
		if err := g.mine.Set(ctx, spawn); err != nil {
			return fmt.Errorf("game: commit: %w", err)
		}
	}
	if err := g.committing.Set(ctx, false); err != nil {
		return fmt.Errorf("game: commit: %w", err)
	}

	commitsTotal.Inc()
	linesCleared.Add(float64(cleared))
	g.log.Debug("Game.Commit: locked", "block", drop.Block, "cleared", cleared, "points", points, "next", newBlock)
	return nil
}

// Move shifts and/or rotates this participant's piece. Right wins over left when
// both are held. A move that would collide is dropped and Move reports false.
func (g *Game) Move(ctx context.Context, left, right, rotate bool) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.playing.Get() {
		return false, nil
	}
	drop := g.mine.Get()
	if rotate {
		drop.Shape = tetris.Rotate(drop.Shape)
	}
	offset := 0
	if left {
		offset = -1
	}
	if right {
		offset = 1
	}
	if tetris.HasCollision(g.board.State().Board, drop.Shape, drop.Row, drop.Column+offset) {
		return false, nil
	}
	drop.Column += offset
	if err := g.mine.Set(ctx, drop); err != nil {
		return false, fmt.Errorf("game: move: %w", err)
	}
	return true, nil
}

// SoftDrop switches gravity to Fast while on, back to Normal when released.
func (g *Game) SoftDrop(ctx context.Context, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.playing.Get() {
		return nil
	}
	speed := Normal
	if on {
		speed = Fast
	}
	if err := g.speed.Set(ctx, speed); err != nil {
		return fmt.Errorf("game: soft drop: %w", err)
	}
	return nil
}

func (g *Game) Playing() bool { return g.playing.Get() }

func (g *Game) Speed() TickSpeed { return g.speed.Get() }

// TickInterval is the current gravity interval, 0 while no ticks should fire.
func (g *Game) TickInterval() time.Duration {
	if !g.playing.Get() {
		return 0
	}
	return g.speed.Get().Interval()
}

// WatchSpeed calls fn after every delivered change of the tick speed or the
// playing flag. fn runs on the delivering goroutine and must not block.
func (g *Game) WatchSpeed(fn func()) {
	g.speed.Watch(func(_, _ TickSpeed) { fn() })
	g.playing.Watch(func(_, _ bool) { fn() })
}

// Board returns the settled board without any falling piece.
func (g *Game) Board() tetris.Board { return g.board.State().Board.Clone() }

// Drop returns this participant's piece.
func (g *Game) Drop() tetris.Drop { return g.mine.Get() }

// Snapshot is the read-only view a renderer consumes.
type Snapshot struct {
	Board    tetris.Board   `json:"board"`
	Score    int            `json:"score"`
	Upcoming []tetris.Block `json:"upcomingBlocks"`
	Playing  bool           `json:"isPlaying"`
	Speed    TickSpeed      `json:"tickSpeed"`
}

// Snapshot composes the board with every live piece while the game is playing.
func (g *Game) Snapshot() Snapshot {
	board := g.board.State().Board
	if board.Height() == 0 {
		board = tetris.EmptyBoard(g.height)
	}
	playing := g.playing.Get()
	if playing {
		all := g.drops.All()
		drops := make([]tetris.Drop, 0, len(all))
		for _, id := range g.drops.Participants() {
			drops = append(drops, all[id])
		}
		board = tetris.Composite(board, drops...)
	} else {
		board = board.Clone()
	}
	return Snapshot{
		Board:    board,
		Score:    g.score.Get(),
		Upcoming: slices.Clone(g.upcoming.Get()),
		Playing:  playing,
		Speed:    g.speed.Get(),
	}
}
