package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the client backing slot locks and notifications.
// Zero pool fields fall back to go-redis defaults.
type Options struct {
	Addr     string
	Username string
	Password string

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
}

func (o Options) redisOptions() *redis.Options {
	dial, read := o.DialTimeout, o.ReadTimeout
	if dial <= 0 {
		dial = 3 * time.Second
	}
	if read <= 0 {
		read = 2 * time.Second
	}
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DialTimeout:  dial,
		ReadTimeout:  read,
		WriteTimeout: read,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
	}
}

func NewRedisClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(opts.redisOptions())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
