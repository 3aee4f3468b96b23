package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tetris_together/internal/logger"
)

const (
	defaultRedisPrefix = "tetris:"
	defaultRedisTTL    = 24 * time.Hour
)

// publishScript sequences an envelope with a per-session counter, retains it for
// late joiners and publishes it, all atomically so the retained state and the
// published order agree.
//
// KEYS: counter, retained hash, action log of the key, set of action keys
// ARGV: envelope json, kind, retain field, absorbs, channel, ttl seconds, key
var publishScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local data = '{"order":' .. n .. ',' .. string.sub(ARGV[1], 2)
if ARGV[2] == 'action' then
  if ARGV[4] == '1' then
    redis.call('DEL', KEYS[3])
  end
  redis.call('RPUSH', KEYS[3], data)
  redis.call('SADD', KEYS[4], ARGV[7])
  redis.call('EXPIRE', KEYS[3], ARGV[6])
  redis.call('EXPIRE', KEYS[4], ARGV[6])
elseif ARGV[2] == 'leave' then
  local suffix = ARGV[3]
  for _, f in ipairs(redis.call('HKEYS', KEYS[2])) do
    if string.sub(f, 1, 2) == 'k/' and string.sub(f, -string.len(suffix)) == suffix then
      redis.call('HDEL', KEYS[2], f)
    end
  end
else
  redis.call('HSET', KEYS[2], ARGV[3], data)
end
redis.call('EXPIRE', KEYS[1], ARGV[6])
redis.call('EXPIRE', KEYS[2], ARGV[6])
redis.call('PUBLISH', ARGV[5], data)
return n
`)

// RedisTransport replicates a session through Redis pub/sub. Retained state lives
// next to the channel so a replica that subscribes late can catch up.
type RedisTransport struct {
	client      *redis.Client
	session     string
	participant int64
	prefix      string
	ttl         time.Duration
	log         *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
	closed bool
}

func NewRedisTransport(client *redis.Client, session string, participant int64, log *slog.Logger) *RedisTransport {
	if log == nil {
		log = logger.Get()
	}
	return &RedisTransport{
		client:      client,
		session:     session,
		participant: participant,
		prefix:      defaultRedisPrefix,
		ttl:         defaultRedisTTL,
		log:         log.With("transport", "redis", "session", session),
	}
}

func (t *RedisTransport) key(parts ...string) string {
	k := t.prefix + t.session
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (t *RedisTransport) channel() string { return t.key("updates") }

func retainField(env Envelope) string {
	switch env.Kind {
	case KindValue:
		return "v/" + env.Key
	case KindKeyed:
		return "k/" + env.Key + "/" + strconv.FormatInt(env.Sender, 10)
	case KindLeave:
		return "/" + strconv.FormatInt(env.Sender, 10)
	}
	return ""
}

func (t *RedisTransport) Publish(ctx context.Context, env Envelope) error {
	if env.Sender != t.participant {
		return ErrForeignKey
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return t.publish(ctx, env)
}

func (t *RedisTransport) publish(ctx context.Context, env Envelope) error {
	env.Session = t.session
	env.Order = 0
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	absorbs := "0"
	if env.Absorbs {
		absorbs = "1"
	}
	keys := []string{t.key("order"), t.key("retained"), t.key("log", env.Key), t.key("logs")}
	args := []any{
		string(data),
		string(env.Kind),
		retainField(env),
		absorbs,
		t.channel(),
		int64(t.ttl / time.Second),
		env.Key,
	}
	if err := publishScript.Run(ctx, t.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.pubsub != nil {
		t.mu.Unlock()
		return errors.New("redis transport: already subscribed")
	}
	ps := t.client.Subscribe(ctx, t.channel())
	t.pubsub = ps
	t.done = make(chan struct{})
	t.mu.Unlock()

	// confirm the subscription before reading retained state, so nothing published
	// after the read can be missed
	if _, err := ps.Receive(ctx); err != nil {
		t.abandon(ps)
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := ps.Channel()

	backlog, upTo, err := t.loadRetained(ctx)
	if err != nil {
		t.abandon(ps)
		return err
	}
	t.log.Debug("RedisTransport.Subscribe: catching up", "retained", len(backlog), "order", upTo)

	go func() {
		defer close(t.done)
		for _, env := range backlog {
			deliver(env)
		}
		for msg := range ch {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				t.log.Warn("RedisTransport: bad message", "error", err)
				continue
			}
			if env.Order <= upTo {
				continue
			}
			deliver(env)
		}
	}()
	return nil
}

func (t *RedisTransport) abandon(ps *redis.PubSub) {
	_ = ps.Close()
	t.mu.Lock()
	t.pubsub = nil
	t.done = nil
	t.mu.Unlock()
}

// loadRetained reads the retained envelopes together with the counter value they
// correspond to. Actions appended after that point are left for live delivery.
func (t *RedisTransport) loadRetained(ctx context.Context) ([]Envelope, uint64, error) {
	pipe := t.client.TxPipeline()
	orderCmd := pipe.Get(ctx, t.key("order"))
	hashCmd := pipe.HGetAll(ctx, t.key("retained"))
	logsCmd := pipe.SMembers(ctx, t.key("logs"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis load retained: %w", err)
	}

	var upTo uint64
	if v, err := orderCmd.Uint64(); err == nil {
		upTo = v
	}

	var raw []string
	for _, data := range hashCmd.Val() {
		raw = append(raw, data)
	}
	for _, key := range logsCmd.Val() {
		entries, err := t.client.LRange(ctx, t.key("log", key), 0, -1).Result()
		if err != nil {
			return nil, 0, fmt.Errorf("redis load log %s: %w", key, err)
		}
		raw = append(raw, entries...)
	}

	out := make([]Envelope, 0, len(raw))
	for _, data := range raw {
		var env Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			t.log.Warn("RedisTransport: bad retained entry", "error", err)
			continue
		}
		if env.Order > upTo {
			continue
		}
		out = append(out, env)
	}
	slices.SortFunc(out, func(a, b Envelope) int {
		switch {
		case a.Order < b.Order:
			return -1
		case a.Order > b.Order:
			return 1
		}
		return 0
	})
	return out, upTo, nil
}

// Close announces the participant's departure and stops delivery.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ps, done := t.pubsub, t.done
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := t.publish(ctx, Envelope{Kind: KindLeave, Sender: t.participant})

	if ps != nil {
		if cerr := ps.Close(); err == nil {
			err = cerr
		}
		<-done
	}
	return err
}
