package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order представляет ордер пользователя.
//
// Жизненный цикл: создается в статусе open, атомарно переходит в filled
// вместе с расчетом (settlement) либо в cancelled. Заполненный ордер
// иммутабелен и никогда не переоткрывается.
//
// Система исполняет только market-ордера по референсной цене
// (последняя цена пары, без стакана). Ордер заполняется целиком или
// отклоняется, частичных исполнений нет, поэтому на один ордер
// приходится максимум одна сделка (Trade).
type Order struct {
	ID             int              `json:"id" db:"id"`
	UserID         int              `json:"user_id" db:"user_id"`
	Pair           string           `json:"pair" db:"pair"` // BTC_USDT
	Side           string           `json:"side" db:"side"`
	Type           string           `json:"type" db:"type"`
	Price          *decimal.Decimal `json:"price,omitempty" db:"price"` // цена исполнения, nil пока open
	Quantity       decimal.Decimal  `json:"quantity" db:"quantity"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity" db:"filled_quantity"`
	Status         string           `json:"status" db:"status"`
	IsBotOrder     bool             `json:"is_bot_order" db:"is_bot_order"`
	BotID          *int             `json:"bot_id,omitempty" db:"bot_id"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// Trade представляет исполнение ордера (ровно одно на заполненный ордер)
type Trade struct {
	ID         int             `json:"id" db:"id"`
	OrderID    int             `json:"order_id" db:"order_id"`
	Price      decimal.Decimal `json:"price" db:"price"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	ExecutedAt time.Time       `json:"executed_at" db:"executed_at"`
}

// Стороны ордера
const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

// Типы ордера
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Статусы ордера
const (
	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

// SplitPair разбивает пару вида BTC_USDT на базовый и котируемый активы
func SplitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid pair format: %q", pair)
	}
	return parts[0], parts[1], nil
}

// PairSymbol преобразует внутреннюю пару во внешний символ биржи
// (BTC_USDT -> BTCUSDT)
func PairSymbol(pair string) string {
	return strings.ReplaceAll(pair, "_", "")
}
