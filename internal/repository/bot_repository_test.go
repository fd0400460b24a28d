package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

func newBotRepo(t *testing.T) (sqlmock.Sqlmock, *BotRepository) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return mock, NewBotRepository(db)
}

func TestBotListActive(t *testing.T) {
	mock, repo := newBotRepo(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "strategy_type", "strategy_config",
		"status", "monthly_fee", "max_drawdown_limit", "created_at", "evicted_at",
	}).
		AddRow(7, "rsi-dip", "buys oversold dips", "rsi", []byte(`{"pair":"BTC_USDT"}`),
			"active", "10", "30", time.Now(), nil).
		AddRow(8, "ma-trend", "", "ma_cross", []byte(`{"pair":"ETH_USDT"}`),
			"active", "25", "20", time.Now(), nil)

	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(models.BotStatusActive).
		WillReturnRows(rows)

	bots, err := repo.ListActive()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bots) != 2 {
		t.Fatalf("len = %d, want 2", len(bots))
	}
	if bots[0].Name != "rsi-dip" || !bots[0].MonthlyFee.Equal(decimal.NewFromInt(10)) {
		t.Errorf("first bot = %s fee %s", bots[0].Name, bots[0].MonthlyFee)
	}
}

func TestBotGetByIDNotFound(t *testing.T) {
	mock, repo := newBotRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "strategy_type", "strategy_config",
			"status", "monthly_fee", "max_drawdown_limit", "created_at", "evicted_at",
		}))

	if _, err := repo.GetByID(99); !errors.Is(err, ErrBotNotFound) {
		t.Errorf("expected ErrBotNotFound, got %v", err)
	}
}

func TestBotEvict(t *testing.T) {
	mock, repo := newBotRepo(t)

	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE bots SET status`).
		WithArgs(models.BotStatusEvicted, at, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Evict(7, at); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBotUpdateConfig(t *testing.T) {
	mock, repo := newBotRepo(t)

	cfg := []byte(`{"pair":"ETH_USDT","trade_pct":5}`)
	mock.ExpectExec(`UPDATE bots SET strategy_config`).
		WithArgs(cfg, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateConfig(7, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec(`UPDATE bots SET strategy_config`).
		WithArgs(cfg, 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateConfig(99, cfg); !errors.Is(err, ErrBotNotFound) {
		t.Errorf("expected ErrBotNotFound, got %v", err)
	}
}

func TestBotGetPerformance(t *testing.T) {
	mock, repo := newBotRepo(t)

	mock.ExpectQuery(`SELECT (.+) FROM bot_performance`).
		WithArgs(7, "2026-08").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "bot_id", "period", "win_rate", "monthly_return_pct",
			"max_drawdown_pct", "sharpe_ratio", "total_trades", "calculated_at",
		}).AddRow(3, 7, "2026-08", "62.5", "4.1", "12.3", "1.4", 16, time.Now()))

	perf, err := repo.GetPerformance(7, "2026-08")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perf.BotID != 7 || !perf.WinRate.Equal(decimal.RequireFromString("62.5")) {
		t.Errorf("perf = bot %d win rate %s", perf.BotID, perf.WinRate)
	}

	mock.ExpectQuery(`SELECT (.+) FROM bot_performance`).
		WithArgs(7, "2026-09").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "bot_id", "period", "win_rate", "monthly_return_pct",
			"max_drawdown_pct", "sharpe_ratio", "total_trades", "calculated_at",
		}))

	if _, err := repo.GetPerformance(7, "2026-09"); !errors.Is(err, ErrPerformanceNotFound) {
		t.Errorf("expected ErrPerformanceNotFound, got %v", err)
	}
}

func TestBotUpsertPerformance(t *testing.T) {
	mock, repo := newBotRepo(t)

	mock.ExpectQuery(`INSERT INTO bot_performance`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	perf := &models.BotPerformance{
		BotID:            7,
		Period:           "2026-08",
		WinRate:          decimal.RequireFromString("62.5"),
		MonthlyReturnPct: decimal.RequireFromString("4.1"),
		MaxDrawdownPct:   decimal.RequireFromString("12.3"),
		SharpeRatio:      decimal.RequireFromString("1.4"),
		TotalTrades:      16,
		CalculatedAt:     time.Now().UTC(),
	}
	if err := repo.UpsertPerformance(perf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perf.ID != 3 {
		t.Errorf("id = %d, want 3", perf.ID)
	}
}
