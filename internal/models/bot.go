package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bot представляет торгового бота платформы.
//
// StrategyType + StrategyConfig определяют стратегию генерации сигналов
// (см. internal/bot/strategy.go). Конфигурация хранится в БД как JSON.
//
// Жизненный цикл: создается оператором, деактивируется (evicted) по
// kill/delete. Бот никогда не удаляется физически, пока на него
// ссылаются подписки или строки производительности.
type Bot struct {
	ID               int             `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Description      string          `json:"description" db:"description"`
	StrategyType     string          `json:"strategy_type" db:"strategy_type"`
	StrategyConfig   []byte          `json:"-" db:"strategy_config"` // JSON параметров стратегии
	Status           string          `json:"status" db:"status"`
	MonthlyFee       decimal.Decimal `json:"monthly_fee" db:"monthly_fee"`
	MaxDrawdownLimit decimal.Decimal `json:"max_drawdown_limit" db:"max_drawdown_limit"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	EvictedAt        *time.Time      `json:"evicted_at,omitempty" db:"evicted_at"`
}

// Статусы бота
const (
	BotStatusActive  = "active"
	BotStatusEvicted = "evicted"
)

// BotSubscription представляет подписку пользователя на бота.
//
// Инварианты:
// - максимум одна активная подписка на пару (user, bot)
// - AllocatedUSDT после эскроу в locked возвращается только целиком:
//   при отписке или принудительной отмене из-за неуплаты продления
type BotSubscription struct {
	ID            int             `json:"id" db:"id"`
	UserID        int             `json:"user_id" db:"user_id"`
	BotID         int             `json:"bot_id" db:"bot_id"`
	AllocatedUSDT decimal.Decimal `json:"allocated_usdt" db:"allocated_usdt"`
	FeePaidUSDT   decimal.Decimal `json:"fee_paid_usdt" db:"fee_paid_usdt"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	NextRenewalAt time.Time       `json:"next_renewal_at" db:"next_renewal_at"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}

// BotPerformance - периодический снимок агрегированной производительности
// бота (период в формате YYYY-MM). Пишется фоновой задачей агрегации,
// читается при листинге ботов.
type BotPerformance struct {
	ID               int             `json:"id" db:"id"`
	BotID            int             `json:"bot_id" db:"bot_id"`
	Period           string          `json:"period" db:"period"` // "2026-08"
	WinRate          decimal.Decimal `json:"win_rate" db:"win_rate"`
	MonthlyReturnPct decimal.Decimal `json:"monthly_return_pct" db:"monthly_return_pct"`
	MaxDrawdownPct   decimal.Decimal `json:"max_drawdown_pct" db:"max_drawdown_pct"`
	SharpeRatio      decimal.Decimal `json:"sharpe_ratio" db:"sharpe_ratio"`
	TotalTrades      int             `json:"total_trades" db:"total_trades"`
	CalculatedAt     time.Time       `json:"calculated_at" db:"calculated_at"`
}

// RenewalPeriod - период продления подписки
const RenewalPeriod = 30 * 24 * time.Hour
