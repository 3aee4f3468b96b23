package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tetris_together/internal/config"
	"tetris_together/internal/control"
	"tetris_together/internal/game"
	"tetris_together/internal/logger"
	"tetris_together/internal/replica"
)

type player struct {
	name    string
	session *replica.Session
	game    *game.Game
	driver  *control.Driver
	errc    chan error
}

// ws_smoke plays a short two-participant game through the relay (or Redis) and
// checks that both replicas end up with the same board and score.
func main() {
	transport := flag.String("transport", "ws", "ws or redis")
	session := flag.String("session", "", "session id (a new one when empty)")
	duration := flag.Duration("duration", 5*time.Second, "how long to play")
	flag.Parse()

	cfg := config.LoadClient()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	ctx := context.Background()

	sid := *session
	if sid == "" {
		sid = fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	}

	var rdb *redis.Client
	if *transport == "redis" {
		if cfg.RedisAddr == "" {
			logger.Fatal("ws_smoke: REDIS_ADDR not set")
		}
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
	}

	connect := func(name string) *player {
		var (
			t           replica.Transport
			participant int64
		)
		switch *transport {
		case "ws":
			join, err := joinSession(ctx, cfg.RelayURL, sid)
			if err != nil {
				logger.Fatal("ws_smoke: join", "player", name, "error", err)
			}
			participant = join.Participant
			wt, err := replica.DialWS(ctx, cfg.RelayURL, join.Token, sid, participant, nil)
			if err != nil {
				logger.Fatal("ws_smoke: dial", "player", name, "error", err)
			}
			t = wt
		case "redis":
			participant = rand.Int64N(1<<53-1) + 1
			t = replica.NewRedisTransport(rdb, sid, participant, nil)
		default:
			logger.Fatal("ws_smoke: unknown transport " + *transport)
		}

		s := replica.NewSession(sid, participant, t, nil)
		g := game.New(s, game.Options{Height: cfg.BoardHeight})
		if err := s.Open(ctx); err != nil {
			logger.Fatal("ws_smoke: open", "player", name, "error", err)
		}
		p := &player{name: name, session: s, game: g, driver: control.NewDriver(g, control.Options{}), errc: make(chan error, 1)}
		go func() { p.errc <- p.driver.Run(ctx) }()
		logger.Info("ws_smoke: connected", "player", name, "participant", participant, "session", sid)
		return p
	}

	a := connect("A")
	b := connect("B")

	if err := a.game.Start(ctx); err != nil {
		logger.Fatal("ws_smoke: start", "error", err)
	}

	// A holds soft drop and wiggles, B rotates now and then
	a.driver.HandleKey(control.KeyDown, true, false)
	deadline := time.After(*duration)
	wiggle := time.NewTicker(400 * time.Millisecond)
	defer wiggle.Stop()
loop:
	for i := 0; ; i++ {
		select {
		case <-deadline:
			break loop
		case <-wiggle.C:
			if i%2 == 0 {
				a.driver.HandleSwipe(control.SwipeLeft)
			} else {
				a.driver.HandleSwipe(control.SwipeRight)
			}
			if i%3 == 0 {
				b.driver.HandleKey(control.KeyUp, true, false)
			}
		}
	}

	if err := a.game.End(ctx); err != nil {
		logger.Error("ws_smoke: end", "error", err)
	}
	for _, p := range []*player{a, b} {
		p.driver.Stop()
		if err := <-p.errc; err != nil {
			logger.Warn("ws_smoke: driver", "player", p.name, "error", err)
		}
	}

	// let the last envelopes land
	time.Sleep(500 * time.Millisecond)
	sa, sb := a.game.Snapshot(), b.game.Snapshot()
	fmt.Println(sa.Board.String())
	fmt.Printf("score A=%d B=%d upcoming A=%v B=%v\n", sa.Score, sb.Score, sa.Upcoming, sb.Upcoming)

	_ = a.session.Close()
	_ = b.session.Close()

	if sa.Board.String() != sb.Board.String() || sa.Score != sb.Score || sa.Playing != sb.Playing {
		logger.Error("ws_smoke: replicas diverged")
		os.Exit(1)
	}
	logger.Info("ws_smoke: replicas converged", "score", sa.Score)
}

type joinResponse struct {
	Participant int64  `json:"participant"`
	Token       string `json:"token"`
}

// joinSession asks the relay's HTTP API for an identity in session.
func joinSession(ctx context.Context, relayURL, session string) (*joinResponse, error) {
	base := strings.TrimSuffix(relayURL, "/ws")
	base = strings.Replace(base, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/sessions/"+session+"/join", nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("join: status %d", res.StatusCode)
	}
	var out joinResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("join: decode: %w", err)
	}
	return &out, nil
}
