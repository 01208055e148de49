package db

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects the redis session backend. The first ping is
// retried so the client can start alongside a redis that is still booting.
func NewRedisClient(ctx context.Context, url string, log *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 3 * time.Second
	}
	// a single local client, a handful of connections is plenty
	opts.PoolSize = 4

	client := redis.NewClient(opts)

	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(250*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			log.Warn("redis not reachable, retrying", zap.String("addr", opts.Addr), zap.Int("attempt", e.Attempts()))
		}).
		Build()
	err = failsafe.With[any](retry).WithContext(ctx).Run(func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	log.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return client, nil
}
