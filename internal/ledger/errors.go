package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Таксономия ошибок ledger
//
// InsufficientFundsError - пользовательская ошибка (4xx): запрошенное
// списание или блокировка превышает доступный баланс. Содержит точную
// разбивку нехватки для ответа клиенту.
//
// InvariantViolationError - фатальная ошибка учета: запрошенный unlock
// или debit превышает locked/available с учетом конкурентных писателей.
// Означает баг в ledger. Логируется, операция прерывается. Никогда не
// маскируется клампингом в production-коде.

var (
	// ErrWalletNotFound - кошелек (user, asset) не существует
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrNonPositiveAmount - сумма операции должна быть > 0
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// InsufficientFundsError - недостаточно доступных средств
type InsufficientFundsError struct {
	Asset     string
	Required  decimal.Decimal
	Available decimal.Decimal

	// Разбивка требуемой суммы для операций подписки
	// (нулевые для обычных списаний)
	Fee        decimal.Decimal
	Investment decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	if e.Fee.IsPositive() || e.Investment.IsPositive() {
		return fmt.Sprintf(
			"insufficient funds: available %s %s, required %s (fee %s + investment %s)",
			e.Available.String(), e.Asset, e.Required.String(), e.Fee.String(), e.Investment.String(),
		)
	}
	return fmt.Sprintf(
		"insufficient funds: available %s %s, required %s",
		e.Available.String(), e.Asset, e.Required.String(),
	)
}

// Shortfall возвращает размер нехватки
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

// InvariantViolationError - нарушение инварианта баланса.
// Сигнализирует баг в учете, а не ошибку пользователя.
type InvariantViolationError struct {
	WalletID int
	Op       string // "unlock", "debit"
	Amount   decimal.Decimal
	Current  decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf(
		"ledger invariant violation: %s of %s exceeds current %s on wallet %d",
		e.Op, e.Amount.String(), e.Current.String(), e.WalletID,
	)
}

// IsInsufficientFunds проверяет, является ли ошибка нехваткой средств
func IsInsufficientFunds(err error) bool {
	var ife *InsufficientFundsError
	return errors.As(err, &ife)
}

// IsInvariantViolation проверяет, является ли ошибка нарушением инварианта
func IsInvariantViolation(err error) bool {
	var ive *InvariantViolationError
	return errors.As(err, &ive)
}
