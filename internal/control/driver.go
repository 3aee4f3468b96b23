package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tetris_together/internal/logger"
	"tetris_together/internal/replica"
)

// DefaultRepeat is the cadence of a held left/right key.
const DefaultRepeat = 300 * time.Millisecond

// Game is what the driver steers.
type Game interface {
	Tick(ctx context.Context) error
	Move(ctx context.Context, left, right, rotate bool) (bool, error)
	SoftDrop(ctx context.Context, on bool) error
	Playing() bool
	// TickInterval returns 0 while gravity is stopped.
	TickInterval() time.Duration
	// WatchSpeed registers a non-blocking callback for tick speed changes.
	WatchSpeed(fn func())
}

type Options struct {
	Repeat time.Duration
	Logger *slog.Logger
}

// Driver owns the gravity timer and the key-repeat ticker of one participant.
// All calls into the game happen on the goroutine running Run.
type Driver struct {
	g      Game
	log    *slog.Logger
	repeat time.Duration

	intents chan Intent
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	started  chan struct{}
	runOnce  sync.Once
}

func NewDriver(g Game, opts Options) *Driver {
	if opts.Repeat <= 0 {
		opts.Repeat = DefaultRepeat
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	d := &Driver{
		g:       g,
		log:     opts.Logger.With("component", "driver"),
		repeat:  opts.Repeat,
		intents: make(chan Intent, 64),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		started: make(chan struct{}),
	}
	g.WatchSpeed(d.poke)
	return d
}

func (d *Driver) poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Send queues an intent. It reports false when the driver is stopped or its
// queue is full.
func (d *Driver) Send(in Intent) bool {
	select {
	case <-d.stop:
		return false
	default:
	}
	select {
	case d.intents <- in:
		return true
	default:
		d.log.Warn("Driver.Send: queue full, dropping intent", "intent", in)
		return false
	}
}

// HandleKey feeds a keyboard transition.
func (d *Driver) HandleKey(key string, down, repeat bool) bool {
	in, ok := KeyIntent(key, down, repeat)
	if !ok {
		return false
	}
	return d.Send(in)
}

// HandleSwipe feeds a touch gesture.
func (d *Driver) HandleSwipe(dir Direction) bool {
	in, ok := SwipeIntent(dir)
	if !ok {
		return false
	}
	return d.Send(in)
}

// Stop ends Run and waits for its teardown. Safe to call more than once.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	select {
	case <-d.started:
		<-d.done
	default:
	}
}

// Run drives the game until ctx is cancelled or Stop is called.
func (d *Driver) Run(ctx context.Context) error {
	first := false
	d.runOnce.Do(func() { first = true })
	if !first {
		return errors.New("control: driver already ran")
	}
	close(d.started)
	defer close(d.done)

	s := &loopState{d: d}
	s.timer = time.NewTimer(time.Hour)
	s.timer.Stop()
	defer s.teardown()

	s.arm()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stop:
			return nil
		case <-d.wake:
			if !s.armed {
				s.arm()
			}
		case <-s.timer.C:
			s.armed = false
			if err := d.g.Tick(ctx); err != nil {
				if errors.Is(err, replica.ErrClosed) {
					return err
				}
				d.log.Warn("Driver.Run: tick failed", "error", err)
			}
			// the interval in force now decides the next firing
			s.arm()
		case <-s.repeatC:
			s.move(ctx, false)
		case in := <-d.intents:
			if err := s.handle(ctx, in); errors.Is(err, replica.ErrClosed) {
				return err
			}
		}
	}
}

type loopState struct {
	d     *Driver
	timer *time.Timer
	armed bool

	left, right bool
	softDrop    bool
	repeat      *time.Ticker
	repeatC     <-chan time.Time
}

func (s *loopState) arm() {
	iv := s.d.g.TickInterval()
	if iv <= 0 {
		if s.armed {
			s.timer.Stop()
			s.armed = false
		}
		return
	}
	s.timer.Reset(iv)
	s.armed = true
}

func (s *loopState) handle(ctx context.Context, in Intent) error {
	g := s.d.g
	var err error
	switch in {
	case MoveLeft:
		_, err = g.Move(ctx, true, false, false)
	case MoveRight:
		_, err = g.Move(ctx, false, true, false)
	case Rotate:
		_, err = g.Move(ctx, false, false, true)
	case SoftDropOn:
		s.softDrop = true
		err = g.SoftDrop(ctx, true)
	case SoftDropOff:
		s.softDrop = false
		err = g.SoftDrop(ctx, false)
	case HoldLeft:
		s.left = true
		err = s.held(ctx)
	case ReleaseLeft:
		s.left = false
		err = s.held(ctx)
	case HoldRight:
		s.right = true
		err = s.held(ctx)
	case ReleaseRight:
		s.right = false
		err = s.held(ctx)
	default:
		s.d.log.Warn("Driver.handle: unknown intent", "intent", in)
	}
	if err != nil {
		s.d.log.Warn("Driver.handle: failed", "intent", in, "error", err)
	}
	return err
}

// held restarts the repeat cadence after a direction key changes and moves at once.
func (s *loopState) held(ctx context.Context) error {
	if s.repeat != nil {
		s.repeat.Stop()
		s.repeat, s.repeatC = nil, nil
	}
	if !s.left && !s.right {
		return nil
	}
	s.repeat = time.NewTicker(s.d.repeat)
	s.repeatC = s.repeat.C
	return s.move(ctx, true)
}

func (s *loopState) move(ctx context.Context, immediate bool) error {
	if !s.left && !s.right {
		return nil
	}
	_, err := s.d.g.Move(ctx, s.left, s.right, false)
	if err != nil && !immediate {
		s.d.log.Warn("Driver.repeat: move failed", "error", err)
	}
	return err
}

func (s *loopState) teardown() {
	s.timer.Stop()
	if s.repeat != nil {
		s.repeat.Stop()
	}
	if s.softDrop && s.d.g.Playing() {
		if err := s.d.g.SoftDrop(context.Background(), false); err != nil {
			s.d.log.Warn("Driver.teardown: release soft drop", "error", err)
		}
	}
	s.d.log.Debug("Driver.Run: stopped")
}
