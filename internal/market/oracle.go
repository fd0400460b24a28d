package market

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Типизированные ошибки источника рыночных данных
var (
	ErrNoMarketData = errors.New("no market data for pair")
	ErrUnknownPair  = errors.New("pair is not tracked")
)

// Ticker - снимок цены торговой пары
type Ticker struct {
	Pair      string          `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	Change24h float64         `json:"change_24h"`
	Volume24h float64         `json:"volume_24h"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Oracle - источник цен для settlement и стратегий.
//
// LastPrice возвращает ErrNoMarketData когда цены для пары нет или
// она устарела. Вызывающая сторона обязана трактовать это как
// невозможность исполнения, а не как нулевую цену.
type Oracle interface {
	LastPrice(pair string) (decimal.Decimal, error)
	RecentCloses(pair string, n int) ([]float64, error)
}

// Cache - потокобезопасный кэш тикеров и истории закрытий с TTL.
//
// Назначение:
// Хранит последний тикер каждой пары и скользящее окно цен закрытия
// для расчета индикаторов. При истечении TTL цена считается
// отсутствующей, но последнее значение хранится как резерв на случай
// сбоя внешнего источника.
type Cache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	maxCloses int
	tickers   map[string]*Ticker
	closes    map[string][]float64
	now       func() time.Time
}

// NewCache создает кэш с заданным TTL свежести цены
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:       ttl,
		maxCloses: 500,
		tickers:   make(map[string]*Ticker),
		closes:    make(map[string][]float64),
		now:       time.Now,
	}
}

// Put записывает свежий тикер и добавляет цену в окно закрытий
func (c *Cache) Put(t Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = c.now()
	}
	c.tickers[t.Pair] = &t

	price, _ := t.Price.Float64()
	window := append(c.closes[t.Pair], price)
	if len(window) > c.maxCloses {
		window = window[len(window)-c.maxCloses:]
	}
	c.closes[t.Pair] = window
}

// LastPrice возвращает актуальную цену пары.
// Устаревший тикер приравнивается к отсутствию данных.
func (c *Cache) LastPrice(pair string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tickers[pair]
	if !ok {
		return decimal.Zero, ErrNoMarketData
	}
	if c.now().Sub(t.UpdatedAt) > c.ttl {
		return decimal.Zero, ErrNoMarketData
	}
	return t.Price, nil
}

// StalePrice возвращает последнюю известную цену без проверки TTL.
// Резервный путь при недоступности внешнего источника.
func (c *Cache) StalePrice(pair string) (Ticker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tickers[pair]
	if !ok {
		return Ticker{}, false
	}
	return *t, true
}

// RecentCloses возвращает до n последних цен закрытия пары.
// Короткая история не ошибка: стратегии обязаны сами проверять
// достаточность окна.
func (c *Cache) RecentCloses(pair string, n int) ([]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	window, ok := c.closes[pair]
	if !ok {
		return nil, ErrNoMarketData
	}
	if len(window) > n {
		window = window[len(window)-n:]
	}
	out := make([]float64, len(window))
	copy(out, window)
	return out, nil
}

// Snapshot возвращает копию всех актуальных тикеров
func (c *Cache) Snapshot() []Ticker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Ticker, 0, len(c.tickers))
	for _, t := range c.tickers {
		out = append(out, *t)
	}
	return out
}
