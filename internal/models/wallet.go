package models

import "github.com/shopspring/decimal"

// Wallet представляет баланс пользователя по одному активу.
//
// Инвариант ledger:
// - Balance >= 0 и Locked >= 0 после каждой операции
// - сумма Balance + Locked меняется только через перечисленные операции
//   (депозит, расчет сделки, списание комиссии) с парной противоположной
//   проводкой, ценность не создается и не уничтожается
//
// Locked - эскроу под инвестицию активной подписки на бота.
// Эти средства недоступны для прямых трат пользователя.
//
// Кошелек создается лениво: при регистрации (USDT), при первом депозите
// актива или при первой покупке базового актива ботом.
type Wallet struct {
	ID      int             `json:"id" db:"id"`
	UserID  int             `json:"user_id" db:"user_id"`
	Asset   string          `json:"asset" db:"asset"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
	Locked  decimal.Decimal `json:"locked" db:"locked_balance"`
}

// QuoteAsset - актив котировки платформы (все комиссии и инвестиции в нем)
const QuoteAsset = "USDT"
