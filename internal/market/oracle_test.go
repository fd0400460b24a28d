package market

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCacheLastPriceFreshness(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(30 * time.Second)
	c.now = func() time.Time { return now }

	c.Put(Ticker{Pair: "BTC_USDT", Price: decimal.NewFromInt(50000)})

	price, err := c.LastPrice("BTC_USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("price = %s, want 50000", price)
	}

	// Протухший тикер приравнивается к отсутствию данных
	now = now.Add(31 * time.Second)
	if _, err := c.LastPrice("BTC_USDT"); !errors.Is(err, ErrNoMarketData) {
		t.Errorf("expected ErrNoMarketData after TTL, got %v", err)
	}

	// Но резервное значение сохраняется
	stale, ok := c.StalePrice("BTC_USDT")
	if !ok {
		t.Fatal("stale price must survive TTL expiry")
	}
	if !stale.Price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("stale price = %s, want 50000", stale.Price)
	}
}

func TestCacheUnknownPair(t *testing.T) {
	c := NewCache(time.Minute)

	if _, err := c.LastPrice("BTC_USDT"); !errors.Is(err, ErrNoMarketData) {
		t.Errorf("expected ErrNoMarketData for empty cache, got %v", err)
	}
	if _, err := c.RecentCloses("BTC_USDT", 10); !errors.Is(err, ErrNoMarketData) {
		t.Errorf("expected ErrNoMarketData for empty history, got %v", err)
	}
	if _, ok := c.StalePrice("BTC_USDT"); ok {
		t.Error("stale price must not exist for unknown pair")
	}
}

func TestCacheRecentClosesWindow(t *testing.T) {
	c := NewCache(time.Minute)

	for i := 1; i <= 10; i++ {
		c.Put(Ticker{Pair: "ETH_USDT", Price: decimal.NewFromInt(int64(i))})
	}

	// Запрошено меньше, чем накоплено: хвост окна
	closes, err := c.RecentCloses("ETH_USDT", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closes) != 3 || closes[0] != 8 || closes[2] != 10 {
		t.Errorf("closes = %v, want [8 9 10]", closes)
	}

	// Короткая история не ошибка
	closes, err = c.RecentCloses("ETH_USDT", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closes) != 10 {
		t.Errorf("len(closes) = %d, want 10", len(closes))
	}
}

func TestCacheClosesWindowBounded(t *testing.T) {
	c := NewCache(time.Minute)
	c.maxCloses = 5

	for i := 1; i <= 8; i++ {
		c.Put(Ticker{Pair: "ETH_USDT", Price: decimal.NewFromInt(int64(i))})
	}

	closes, err := c.RecentCloses("ETH_USDT", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closes) != 5 || closes[0] != 4 || closes[4] != 8 {
		t.Errorf("closes = %v, want [4 5 6 7 8]", closes)
	}
}

func TestCacheSnapshotCopies(t *testing.T) {
	c := NewCache(time.Minute)
	c.Put(Ticker{Pair: "BTC_USDT", Price: decimal.NewFromInt(50000)})
	c.Put(Ticker{Pair: "ETH_USDT", Price: decimal.NewFromInt(3000)})

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	// Изменение копии не задевает кэш
	snap[0].Price = decimal.Zero
	for _, pair := range []string{"BTC_USDT", "ETH_USDT"} {
		if price, err := c.LastPrice(pair); err != nil || price.IsZero() {
			t.Errorf("cache mutated through snapshot copy: %s %v", price, err)
		}
	}
}
