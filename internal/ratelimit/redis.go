package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCommander はRedisStoreが必要とするRedisコマンドのインターフェース。
// go-redisのClientを抽象化してテストでフェイクを注入できるようにする。
type RedisCommander interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisStore はRedisのINCR/EXPIREによる固定ウィンドウのLimiter実装。
// カウンタはRedis側でアトミックに更新されるため、
// 複数プロセス間でウィンドウを共有できる。
type RedisStore struct {
	client RedisCommander
	logger *slog.Logger
	window time.Duration
	max    int
}

// NewRedisStore は新しいRedisStoreを生成する。
func NewRedisStore(client RedisCommander, logger *slog.Logger, window time.Duration, max int) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
		window: window,
		max:    max,
	}
}

// NewRedisClient は接続設定からgo-redisのClientを生成する。
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Check はINCRでカウントアップし、初回カウント時にウィンドウのTTLを設定する。
// Redisへの到達に失敗した場合はエラーを返す（呼び出し側がフェイルオープンを判断する）。
func (s *RedisStore) Check(ctx context.Context, clientID string) (Result, error) {
	key := "ratelimit:" + clientID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit counter increment failed: %w", err)
	}

	// ウィンドウの開始はカウンタの最初のINCR時点
	if count == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			s.logger.Warn("failed to set rate limit window TTL",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()),
			)
		}
	}

	if count > int64(s.max) {
		retryAfter := s.window
		if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: s.max - int(count)}, nil
}

// compile-time interface check
var _ Limiter = (*RedisStore)(nil)
