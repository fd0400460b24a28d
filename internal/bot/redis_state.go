package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore - runtime-состояние ботов в Redis.
//
// Ключи:
//   bot:{id}:last_trade_time - unix-метка последней сделки
//   bot:{id}:last_side       - сторона последней сделки
//   bot:{id}:kill_switch     - "1" когда торговля бота остановлена
type RedisStateStore struct {
	rdb *redis.Client
}

// NewRedisStateStore создает хранилище состояния поверх Redis
func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func key(botID int, suffix string) string {
	return fmt.Sprintf("bot:%d:%s", botID, suffix)
}

func (s *RedisStateStore) LastTradeTime(ctx context.Context, botID int) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, key(botID, "last_trade_time")).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt last_trade_time for bot %d: %w", botID, err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

func (s *RedisStateStore) SetLastTradeTime(ctx context.Context, botID int, t time.Time) error {
	return s.rdb.Set(ctx, key(botID, "last_trade_time"),
		strconv.FormatInt(t.Unix(), 10), 0).Err()
}

func (s *RedisStateStore) LastSide(ctx context.Context, botID int) (Signal, bool, error) {
	raw, err := s.rdb.Get(ctx, key(botID, "last_side")).Result()
	if errors.Is(err, redis.Nil) {
		return SignalNone, false, nil
	}
	if err != nil {
		return SignalNone, false, err
	}
	return Signal(raw), true, nil
}

func (s *RedisStateStore) SetLastSide(ctx context.Context, botID int, side Signal) error {
	return s.rdb.Set(ctx, key(botID, "last_side"), string(side), 0).Err()
}

func (s *RedisStateStore) KillSwitch(ctx context.Context, botID int) (bool, error) {
	raw, err := s.rdb.Get(ctx, key(botID, "kill_switch")).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return raw == "1", nil
}

func (s *RedisStateStore) SetKillSwitch(ctx context.Context, botID int, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	return s.rdb.Set(ctx, key(botID, "kill_switch"), value, 0).Err()
}
