package market

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Fetcher - внешний источник тикеров
type Fetcher interface {
	FetchTickers(ctx context.Context, pairs []string) ([]Ticker, error)
}

// Service - служба рыночных данных.
//
// Назначение:
// Периодически опрашивает внешний источник, наполняет кэш, зеркалит
// тикеры в Redis под ключами market:{pair}:ticker и рассылает
// обновления подписчикам (websocket-хаб).
//
// При сбое источника кэш не очищается: LastPrice начнет возвращать
// ErrNoMarketData только после истечения TTL, а витрина может
// показывать устаревшее значение через StalePrice.
type Service struct {
	pairs    []string
	interval time.Duration
	fetcher  Fetcher
	cache    *Cache
	rdb      *redis.Client
	log      *zap.Logger

	subscribers []func(Ticker)
	shutdown    chan struct{}
	done        chan struct{}
}

// NewService создает службу рыночных данных
func NewService(pairs []string, interval, cacheTTL time.Duration, fetcher Fetcher, rdb *redis.Client, log *zap.Logger) *Service {
	return &Service{
		pairs:    pairs,
		interval: interval,
		fetcher:  fetcher,
		cache:    NewCache(cacheTTL),
		rdb:      rdb,
		log:      log,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Cache возвращает кэш тикеров (реализация Oracle)
func (s *Service) Cache() *Cache {
	return s.cache
}

// OnTicker регистрирует обработчик обновлений тикеров.
// Регистрация допустима только до Start.
func (s *Service) OnTicker(fn func(Ticker)) {
	s.subscribers = append(s.subscribers, fn)
}

// Ticker возвращает тикер пары для API: свежий, либо устаревший
// с признаком stale
func (s *Service) Ticker(pair string) (Ticker, bool, error) {
	if _, err := s.cache.LastPrice(pair); err == nil {
		t, _ := s.cache.StalePrice(pair)
		return t, false, nil
	}
	if t, ok := s.cache.StalePrice(pair); ok {
		return t, true, nil
	}
	if !s.tracked(pair) {
		return Ticker{}, false, ErrUnknownPair
	}
	return Ticker{}, false, ErrNoMarketData
}

// Tickers возвращает снимок всех известных тикеров
func (s *Service) Tickers() []Ticker {
	return s.cache.Snapshot()
}

// Start запускает цикл опроса. Первый опрос выполняется сразу,
// чтобы кэш наполнился до старта торговых циклов.
func (s *Service) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop останавливает цикл опроса и дожидается его завершения
func (s *Service) Stop() {
	close(s.shutdown)
	<-s.done
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.poll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	tickers, err := s.fetcher.FetchTickers(ctx, s.pairs)
	if err != nil {
		s.log.Warn("market poll failed, serving cached prices",
			zap.Error(err))
		return
	}

	for _, t := range tickers {
		s.cache.Put(t)
		s.mirror(ctx, t)
		for _, fn := range s.subscribers {
			fn(t)
		}
	}
	s.log.Debug("market poll ok", zap.Int("tickers", len(tickers)))
}

// mirror публикует тикер в Redis для внешних потребителей
func (s *Service) mirror(ctx context.Context, t Ticker) {
	if s.rdb == nil {
		return
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	key := "market:" + t.Pair + ":ticker"
	if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		s.log.Warn("redis ticker mirror failed",
			zap.String("pair", t.Pair), zap.Error(err))
	}
}

func (s *Service) tracked(pair string) bool {
	for _, p := range s.pairs {
		if p == pair {
			return true
		}
	}
	return false
}
