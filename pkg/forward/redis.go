package forward

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes to Redis pub/sub and counts publishes per
// channel in a hash
type RedisPublisher struct {
	rdb       *redis.Client
	statsKey  string
	trackStat bool
}

// RedisOption configures a RedisPublisher
type RedisOption func(*RedisPublisher)

// WithStatsKey sets the counter hash; an empty key disables counting
func WithStatsKey(key string) RedisOption {
	return func(p *RedisPublisher) {
		p.statsKey = strings.Trim(key, ":")
		p.trackStat = p.statsKey != ""
	}
}

// NewRedisPublisher wraps an existing client
func NewRedisPublisher(rdb *redis.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		rdb:       rdb,
		statsKey:  "zaparoo:notifications:stats",
		trackStat: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRedis creates a client for addr and checks it with PING
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if !p.trackStat {
		return p.rdb.Publish(ctx, channel, payload).Err()
	}

	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, channel, payload)
	pipe.HIncrBy(ctx, p.statsKey, channel, 1)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the underlying client
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
