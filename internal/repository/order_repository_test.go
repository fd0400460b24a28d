package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

func newOrderRepo(t *testing.T) (sqlmock.Sqlmock, *OrderRepository) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return mock, NewOrderRepository(db)
}

func orderRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "pair", "side", "type", "price", "quantity",
		"filled_quantity", "status", "is_bot_order", "bot_id", "created_at",
	})
}

func TestOrderCreateAssignsID(t *testing.T) {
	mock, repo := newOrderRepo(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, now))

	o := &models.Order{
		UserID:   42,
		Pair:     "BTC_USDT",
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.RequireFromString("0.002"),
		Status:   models.OrderStatusOpen,
	}
	if err := repo.Create(o); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.ID != 11 {
		t.Errorf("id = %d, want 11", o.ID)
	}
}

func TestOrderGetByIDNotFound(t *testing.T) {
	mock, repo := newOrderRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM orders`).
		WithArgs(99).
		WillReturnRows(orderRows())

	if _, err := repo.GetByID(99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListFilledBotOrdersChronological(t *testing.T) {
	mock, repo := newOrderRepo(t)

	botID := 7
	now := time.Now()
	rows := orderRows().
		AddRow(1, 42, "BTC_USDT", "buy", "market", "50000", "0.002", "0.002", "filled", true, botID, now.Add(-2*time.Hour)).
		AddRow(2, 42, "BTC_USDT", "sell", "market", "51000", "0.001", "0.001", "filled", true, botID, now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT (.+) FROM orders`).
		WithArgs(42, botID, models.OrderStatusFilled).
		WillReturnRows(rows)

	orders, err := repo.ListFilledBotOrders(42, botID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].Side != models.OrderSideBuy || orders[1].Side != models.OrderSideSell {
		t.Errorf("order of fills broken: %s, %s", orders[0].Side, orders[1].Side)
	}
	if orders[0].BotID == nil || *orders[0].BotID != botID {
		t.Errorf("bot_id = %v, want %d", orders[0].BotID, botID)
	}
}

func TestListFilledBotOrdersBeforeCutoff(t *testing.T) {
	mock, repo := newOrderRepo(t)

	botID := 7
	cutoff := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	rows := orderRows().
		AddRow(1, 42, "BTC_USDT", "buy", "market", "50000", "0.002", "0.002", "filled", true, botID, cutoff.Add(-2*time.Hour))

	mock.ExpectQuery(`SELECT (.+) FROM orders`).
		WithArgs(42, botID, models.OrderStatusFilled, cutoff).
		WillReturnRows(rows)

	orders, err := repo.ListFilledBotOrdersBefore(42, botID, cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("len = %d, want 1", len(orders))
	}
}

func TestGetTradeByOrderID(t *testing.T) {
	mock, repo := newOrderRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM trades`).
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "price", "quantity", "executed_at",
		}).AddRow(21, 11, "50000", "0.002", time.Now()))

	trade, err := repo.GetTradeByOrderID(11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trade.Price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("price = %s, want 50000", trade.Price)
	}
}

func TestGetTradeByOrderIDNotFound(t *testing.T) {
	mock, repo := newOrderRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM trades`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_id", "price", "quantity", "executed_at",
		}))

	if _, err := repo.GetTradeByOrderID(99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}
