package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositTransaction - запись о депозите USDT через сеть Polygon.
//
// Верификация on-chain (статус транзакции, 6 подтверждений, Transfer
// на адрес платформы) выполняется внешним клиентом internal/chain;
// зачисление на кошелек происходит атомарно со сменой статуса.
type DepositTransaction struct {
	ID          int             `json:"id" db:"id"`
	UserID      int             `json:"user_id" db:"user_id"`
	TxHash      string          `json:"tx_hash" db:"tx_hash"`
	AmountUSDT  decimal.Decimal `json:"amount_usdt" db:"amount_usdt"`
	FromAddress string          `json:"from_address" db:"from_address"`
	Status      string          `json:"status" db:"status"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Статусы депозита
const (
	DepositStatusPending   = "pending"
	DepositStatusConfirmed = "confirmed"
	DepositStatusFailed    = "failed"
)

// FeeIncome - иммутабельная запись о комиссии платформы.
//
// Каждая строка привязана к подписке и периоду (YYYY-MM). Поле SettledAt
// служит флагом settled/unsettled для бухгалтерской сверки.
type FeeIncome struct {
	ID             int             `json:"id" db:"id"`
	UserID         int             `json:"user_id" db:"user_id"`
	BotID          int             `json:"bot_id" db:"bot_id"`
	SubscriptionID int             `json:"subscription_id" db:"subscription_id"`
	AmountUSDT     decimal.Decimal `json:"amount_usdt" db:"amount_usdt"`
	Period         string          `json:"period" db:"period"` // "2026-08"
	ChargedAt      time.Time       `json:"charged_at" db:"charged_at"`
	SettledAt      *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}
