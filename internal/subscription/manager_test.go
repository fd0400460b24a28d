package subscription

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/repository"
)

// liquidatorStub записывает вызовы ликвидации
type liquidatorStub struct {
	calls []string
	sold  decimal.Decimal
}

func (l *liquidatorStub) Liquidate(userID, botID int, pair string) (decimal.Decimal, error) {
	l.calls = append(l.calls, pair)
	return l.sold, nil
}

func newTestManager(t *testing.T) (*Manager, sqlmock.Sqlmock, *liquidatorStub) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	liq := &liquidatorStub{}
	m := NewManager(
		db,
		ledger.New(db, log),
		repository.NewBotRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewFeeRepository(db),
		liq,
		log,
	)
	return m, mock, liq
}

func botRows(id int, fee string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "description", "strategy_type", "strategy_config",
		"status", "monthly_fee", "max_drawdown_limit", "created_at", "evicted_at",
	}).AddRow(id, "grid-one", "", "rsi", []byte(`{"pair":"BTC_USDT"}`),
		"active", fee, "30", time.Now(), nil)
}

func subscriptionRows(id, userID, botID int, allocated string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "user_id", "bot_id", "allocated_usdt", "fee_paid_usdt",
		"is_active", "next_renewal_at", "started_at", "ended_at",
	}).AddRow(id, userID, botID, allocated, "10", true, now, now, nil)
}

func emptySubscriptionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "bot_id", "allocated_usdt", "fee_paid_usdt",
		"is_active", "next_renewal_at", "started_at", "ended_at",
	})
}

// Подписка с балансом 10000, комиссией 10 и инвестицией 200:
// свободный баланс становится 9790, эскроу 200, одна запись дохода.
func TestSubscribeChargesFeeAndLocksEscrow(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(emptySubscriptionRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "10000", "0"))
	// Повторная проверка дубликата под блокировкой кошелька
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions (.+) FOR UPDATE`).
		WithArgs(42, 7).
		WillReturnRows(emptySubscriptionRows())
	// Списание комиссии: 10000 -> 9990
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9990", "0", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Эскроу инвестиции: 9990 -> 9790, locked 200
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9790", "200", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO bot_subscriptions`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO fee_income`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectCommit()

	sub, err := m.Subscribe(42, 7, decimal.NewFromInt(200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sub.AllocatedUSDT.Equal(decimal.NewFromInt(200)) {
		t.Errorf("allocated = %s, want 200", sub.AllocatedUSDT)
	}
	if !sub.FeePaidUSDT.Equal(decimal.NewFromInt(10)) {
		t.Errorf("fee paid = %s, want 10", sub.FeePaidUSDT)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSubscribeInsufficientFundsBreakdown(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(emptySubscriptionRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "100", "0"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions (.+) FOR UPDATE`).
		WithArgs(42, 7).
		WillReturnRows(emptySubscriptionRows())
	mock.ExpectRollback()

	_, err := m.Subscribe(42, 7, decimal.NewFromInt(200))
	if !ledger.IsInsufficientFunds(err) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}

	var ife *ledger.InsufficientFundsError
	errors.As(err, &ife)
	if !ife.Fee.Equal(decimal.NewFromInt(10)) || !ife.Investment.Equal(decimal.NewFromInt(200)) {
		t.Errorf("breakdown = fee %s + investment %s, want 10 + 200", ife.Fee, ife.Investment)
	}
}

func TestSubscribeRejectsEvictedBot(t *testing.T) {
	m, mock, _ := newTestManager(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "strategy_type", "strategy_config",
		"status", "monthly_fee", "max_drawdown_limit", "created_at", "evicted_at",
	}).AddRow(7, "grid-one", "", "rsi", []byte(`{}`),
		"evicted", "10", "30", time.Now(), time.Now())

	mock.ExpectQuery(`SELECT (.+) FROM bots`).WithArgs(7).WillReturnRows(rows)

	_, err := m.Subscribe(42, 7, decimal.NewFromInt(200))
	if !errors.Is(err, ErrBotNotAvailable) {
		t.Errorf("expected ErrBotNotAvailable, got %v", err)
	}
}

func TestSubscribeRejectsDuplicate(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))

	_, err := m.Subscribe(42, 7, decimal.NewFromInt(200))
	if !errors.Is(err, repository.ErrAlreadySubscribed) {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
}

// Конкурентная подписка прошла после внешней проверки: дубликат
// обнаруживается повторной проверкой под блокировкой кошелька
func TestSubscribeRejectsDuplicateUnderLock(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(emptySubscriptionRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "10000", "0"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions (.+) FOR UPDATE`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))
	mock.ExpectRollback()

	_, err := m.Subscribe(42, 7, decimal.NewFromInt(200))
	if !errors.Is(err, repository.ErrAlreadySubscribed) {
		t.Errorf("expected ErrAlreadySubscribed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSubscribeRejectsNonPositiveAllocated(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.Subscribe(42, 7, decimal.Zero); !errors.Is(err, ErrNonPositiveAllocated) {
		t.Errorf("expected ErrNonPositiveAllocated, got %v", err)
	}
}

// Отписка возвращает ровно allocated: баланс 9790/200 -> 9990/0
func TestUnsubscribeReleasesExactEscrow(t *testing.T) {
	m, mock, liq := newTestManager(t)

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "9790", "200"))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9990", "0", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bot_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := m.Unsubscribe(42, 7, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(liq.calls) != 0 {
		t.Errorf("liquidator must not be called without liquidate flag")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUnsubscribeWithLiquidation(t *testing.T) {
	m, mock, liq := newTestManager(t)
	liq.sold = decimal.RequireFromString("0.005")

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))
	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "9795", "200"))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9995", "0", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bot_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := m.Unsubscribe(42, 7, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(liq.calls) != 1 || liq.calls[0] != "BTC_USDT" {
		t.Errorf("liquidator calls = %v, want one call for BTC_USDT", liq.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Принудительная отмена возвращает только эскроу: накопленная
// позиция не распродается и остается на балансе пользователя
func TestForceCancelReturnsEscrowWithoutLiquidation(t *testing.T) {
	m, mock, liq := newTestManager(t)
	liq.sold = decimal.RequireFromString("0.005")

	var notified []string
	m.OnStatusChange(func(userID, botID int, status string) {
		notified = append(notified, status)
	})

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "9790", "200"))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9990", "0", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bot_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := m.ForceCancel(42, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(liq.calls) != 0 {
		t.Errorf("force cancel must not liquidate, got calls %v", liq.calls)
	}
	if len(notified) != 1 || notified[0] != StatusCancelled {
		t.Errorf("notifications = %v, want [%s]", notified, StatusCancelled)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Отмена по ID завершенной подписки эквивалентна отсутствию подписки
func TestForceCancelByIDRejectsInactive(t *testing.T) {
	m, mock, _ := newTestManager(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "bot_id", "allocated_usdt", "fee_paid_usdt",
			"is_active", "next_renewal_at", "started_at", "ended_at",
		}).AddRow(1, 42, 7, "200", "10", false, now, now, now))

	if err := m.ForceCancelByID(1); !errors.Is(err, repository.ErrSubscriptionNotFound) {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

// Снятие бота с витрины завершает подписки всех пользователей:
// эскроу возвращается без ликвидации, уходит уведомление об отмене
func TestCancelAllForBotReleasesEverySubscriber(t *testing.T) {
	m, mock, liq := newTestManager(t)

	var notified []string
	m.OnStatusChange(func(userID, botID int, status string) {
		notified = append(notified, status)
	})

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "9790", "200"))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("9990", "0", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bot_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := m.CancelAllForBot(7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(liq.calls) != 0 {
		t.Errorf("eviction cleanup must not liquidate, got calls %v", liq.calls)
	}
	if len(notified) != 1 || notified[0] != StatusCancelled {
		t.Errorf("notifications = %v, want [%s]", notified, StatusCancelled)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Неуплата продления: баланс 10, эскроу 100, комиссия 50.
// Подписка отменяется, итог 110/0, запись дохода не создается.
func TestRenewalInsufficientFundsCancels(t *testing.T) {
	m, mock, _ := newTestManager(t)
	now := time.Now().UTC()

	var notified []string
	m.OnStatusChange(func(userID, botID int, status string) {
		notified = append(notified, status)
	})

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WillReturnRows(subscriptionRows(1, 42, 7, "100"))
	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "50"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions (.+) FOR UPDATE`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "100"))
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "10", "100"))
	// Возврат эскроу целиком, без записи в fee_income
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("110", "0", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bot_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m.RunRenewals(now)

	if len(notified) != 1 || notified[0] != StatusCancelled {
		t.Errorf("notifications = %v, want [%s]", notified, StatusCancelled)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Успешное продление: комиссия списана, доход записан, срок сдвинут
func TestRenewalChargesFeeAndAdvances(t *testing.T) {
	m, mock, _ := newTestManager(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))
	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions (.+) FOR UPDATE`).
		WithArgs(42, 7).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))
	mock.ExpectQuery(`SELECT (.+) FROM wallets (.+) FOR UPDATE`).
		WithArgs(42, "USDT").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "USDT", "500", "200"))
	mock.ExpectExec(`UPDATE wallets`).
		WithArgs("490", "200", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO fee_income`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	mock.ExpectExec(`UPDATE bot_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m.RunRenewals(now)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Подписка завершилась между выборкой и блокировкой: продление молча
// пропускается
func TestRenewalSkipsAlreadyEnded(t *testing.T) {
	m, mock, _ := newTestManager(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions`).
		WillReturnRows(subscriptionRows(1, 42, 7, "200"))
	mock.ExpectQuery(`SELECT (.+) FROM bots`).
		WithArgs(7).
		WillReturnRows(botRows(7, "10"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM bot_subscriptions (.+) FOR UPDATE`).
		WithArgs(42, 7).
		WillReturnRows(emptySubscriptionRows())
	mock.ExpectRollback()

	m.RunRenewals(now)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
