package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Redis is a [Broker] backed by Redis pub/sub. Events travel as the JSON
// produced by [analysis.Event.Encode] on the channel named by [Channel].
type Redis struct {
	client *redis.Client
	buffer int
}

// RedisOption configures a [Redis] broker.
type RedisOption func(*Redis)

// WithRedisBuffer sets the per-subscriber buffer size.
func WithRedisBuffer(n int) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// NewRedis connects to the Redis server at addr. The connection is lazy;
// use [Redis.Ping] to check it.
func NewRedis(addr, password string, db int, opts ...RedisOption) *Redis {
	return NewRedisFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisFromClient wraps an existing client. Close closes it.
func NewRedisFromClient(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, buffer: DefaultBuffer}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Publish sends ev to the channel of analysisID.
func (r *Redis) Publish(ctx context.Context, analysisID string, ev analysis.Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	if err := r.client.Publish(ctx, Channel(analysisID), payload).Err(); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", Channel(analysisID), err)
	}
	return nil
}

// Subscribe subscribes to the channel of analysisID and waits for Redis to
// confirm, so no event published after it returns is missed.
func (r *Redis) Subscribe(ctx context.Context, analysisID string) (Subscription, error) {
	ps := r.client.Subscribe(ctx, Channel(analysisID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notify: subscribe to %s: %w", Channel(analysisID), err)
	}

	s := &redisSub{
		ps:   ps,
		ch:   make(chan analysis.Event, r.buffer),
		done: make(chan struct{}),
	}
	go s.forward(ps.Channel(), analysisID)
	return s, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan analysis.Event
	done chan struct{}
	once sync.Once
}

// forward decodes messages until the pub/sub channel closes or the
// subscription is closed. Undecodable messages are skipped.
func (s *redisSub) forward(msgs <-chan *redis.Message, analysisID string) {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := analysis.Decode([]byte(msg.Payload))
			if err != nil {
				slog.Warn("notify: skipping malformed event",
					slog.String("analysis_id", analysisID),
					slog.Any("err", err),
				)
				continue
			}
			select {
			case s.ch <- ev:
			case <-s.done:
				return
			default:
				slog.Warn("notify: subscriber buffer full, event dropped",
					slog.String("analysis_id", analysisID),
					slog.String("event", string(ev.Event)),
				)
			}
		}
	}
}

func (s *redisSub) Events() <-chan analysis.Event { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

var _ Broker = (*Redis)(nil)
