package ledger

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

func newTestLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(db, zap.NewNop()), mock
}

func walletRows(id, userID int, asset, balance, locked string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "asset", "balance", "locked_balance",
	}).AddRow(id, userID, asset, balance, locked)
}

func TestGetParsesBalances(t *testing.T) {
	lg, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT (.+) FROM wallets`).
		WithArgs(42, "USDT").
		WillReturnRows(walletRows(5, 42, "USDT", "9790.5", "200"))

	w, err := lg.Get(42, "USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance.Equal(decimal.RequireFromString("9790.5")) {
		t.Errorf("balance = %s, want 9790.5", w.Balance)
	}
	if !w.Locked.Equal(decimal.NewFromInt(200)) {
		t.Errorf("locked = %s, want 200", w.Locked)
	}
}

func TestGetWalletNotFound(t *testing.T) {
	lg, mock := newTestLedger(t)

	mock.ExpectQuery(`SELECT (.+) FROM wallets`).
		WithArgs(42, "BTC").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}))

	_, err := lg.Get(42, "BTC")
	if !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestCreditCreatesWalletInOwnTx(t *testing.T) {
	lg, mock := newTestLedger(t)

	mock.ExpectBegin()
	// Кошелька нет, lock создает запись
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}))
	mock.ExpectQuery(`INSERT INTO wallets`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(`UPDATE wallets`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w, err := lg.Credit(42, "USDT", decimal.NewFromInt(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("balance = %s, want 10000", w.Balance)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	lg, _ := newTestLedger(t)

	if _, err := lg.Credit(42, "USDT", decimal.Zero); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("zero credit: expected ErrNonPositiveAmount, got %v", err)
	}
	if _, err := lg.Credit(42, "USDT", decimal.NewFromInt(-5)); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("negative credit: expected ErrNonPositiveAmount, got %v", err)
	}
}

func TestDebitTxInsufficientFunds(t *testing.T) {
	lg, mock := newTestLedger(t)

	mock.ExpectBegin()
	db := lg.DB()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	w := &models.Wallet{
		ID:      5,
		UserID:  42,
		Asset:   "USDT",
		Balance: decimal.NewFromInt(50),
	}

	err = lg.DebitTx(tx, w, decimal.NewFromInt(100))
	if !IsInsufficientFunds(err) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}

	var ife *InsufficientFundsError
	errors.As(err, &ife)
	if !ife.Shortfall().Equal(decimal.NewFromInt(50)) {
		t.Errorf("shortfall = %s, want 50", ife.Shortfall())
	}
	// Баланс не тронут при отказе
	if !w.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance mutated on failed debit: %s", w.Balance)
	}
}

func TestLockFundsTxMovesAvailableToLocked(t *testing.T) {
	lg, mock := newTestLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9790", "200", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := lg.DB().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	w := &models.Wallet{
		ID:      5,
		UserID:  42,
		Asset:   "USDT",
		Balance: decimal.NewFromInt(9990),
	}

	if err := lg.LockFundsTx(tx, w, decimal.NewFromInt(200)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(9790)) {
		t.Errorf("balance = %s, want 9790", w.Balance)
	}
	if !w.Locked.Equal(decimal.NewFromInt(200)) {
		t.Errorf("locked = %s, want 200", w.Locked)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUnlockTxInvariantViolation(t *testing.T) {
	lg, mock := newTestLedger(t)

	mock.ExpectBegin()
	tx, err := lg.DB().Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	w := &models.Wallet{
		ID:      5,
		UserID:  42,
		Asset:   "USDT",
		Balance: decimal.NewFromInt(100),
		Locked:  decimal.NewFromInt(50),
	}

	err = lg.UnlockTx(tx, w, decimal.NewFromInt(200))
	if !IsInvariantViolation(err) {
		t.Fatalf("expected InvariantViolationError, got %v", err)
	}
	// Балансы не клампятся при нарушении инварианта
	if !w.Balance.Equal(decimal.NewFromInt(100)) || !w.Locked.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balances mutated on invariant violation: %s / %s", w.Balance, w.Locked)
	}
}

func TestInsufficientFundsErrorBreakdown(t *testing.T) {
	err := &InsufficientFundsError{
		Asset:      "USDT",
		Required:   decimal.NewFromInt(210),
		Available:  decimal.NewFromInt(100),
		Fee:        decimal.NewFromInt(10),
		Investment: decimal.NewFromInt(200),
	}
	want := "insufficient funds: available 100 USDT, required 210 (fee 10 + investment 200)"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
