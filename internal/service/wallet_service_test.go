package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/chain"
	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/repository"
)

// oracleStub отдает фиксированные цены по парам
type oracleStub struct {
	prices map[string]string
}

func (o *oracleStub) LastPrice(pair string) (decimal.Decimal, error) {
	p, ok := o.prices[pair]
	if !ok {
		return decimal.Zero, errors.New("unknown pair")
	}
	return decimal.RequireFromString(p), nil
}

func (o *oracleStub) RecentCloses(pair string, n int) ([]float64, error) {
	return nil, errors.New("not used")
}

func newTestWalletService(t *testing.T, oracle *oracleStub) (*WalletService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	return NewWalletService(ledger.New(db, log), nil, nil, oracle, log), mock
}

// Оценка балансов: USDT считается по номиналу вместе с эскроу,
// прочие активы по последней цене, актив без цены оценивается нулем
func TestValuedBalances(t *testing.T) {
	svc, mock := newTestWalletService(t, &oracleStub{
		prices: map[string]string{"BTC_USDT": "50000"},
	})

	mock.ExpectQuery(`SELECT (.+) FROM wallets`).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).
			AddRow(5, 42, "BTC", "0.002", "0").
			AddRow(6, 42, "SOL", "3", "0").
			AddRow(7, 42, "USDT", "900", "100"))

	sheet, err := svc.ValuedBalances(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sheet.Wallets) != 3 {
		t.Fatalf("wallets = %d, want 3", len(sheet.Wallets))
	}

	want := map[string]string{"BTC": "100", "SOL": "0", "USDT": "1000"}
	for _, w := range sheet.Wallets {
		if got := w.USDTValue.String(); got != want[w.Asset] {
			t.Errorf("%s value = %s, want %s", w.Asset, got, want[w.Asset])
		}
	}
	if got := sheet.TotalUSDT.String(); got != "1100" {
		t.Errorf("total = %s, want 1100", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// verifierStub проваливает тест при любом обращении к сети
type verifierStub struct {
	t *testing.T
}

func (v *verifierStub) Verify(ctx context.Context, txHash string) (*chain.VerifiedDeposit, error) {
	v.t.Fatalf("unexpected chain verification for %s", txHash)
	return nil, nil
}

// Повторная подача уже учтенного хеша отклоняется по записи в базе,
// до обращения к сети
func TestSubmitDepositRejectsKnownHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := zap.NewNop()
	svc := NewWalletService(
		ledger.New(db, log),
		repository.NewDepositRepository(db),
		&verifierStub{t: t},
		nil, log,
	)

	hash := "0x" + "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	mock.ExpectQuery(`SELECT (.+) FROM deposit_transactions WHERE tx_hash`).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "tx_hash", "amount_usdt", "from_address",
			"status", "confirmed_at", "created_at",
		}).AddRow(3, 42, hash, "100", "0xabc", "confirmed", time.Now(), time.Now()))

	_, err = svc.SubmitDeposit(context.Background(), 42, hash)
	if !errors.Is(err, repository.ErrDepositAlreadySeen) {
		t.Fatalf("expected ErrDepositAlreadySeen, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// Нулевой оракул не ломает выдачу балансов
func TestValuedBalancesNilOracle(t *testing.T) {
	svc, mock := newTestWalletService(t, nil)
	svc.oracle = nil

	mock.ExpectQuery(`SELECT (.+) FROM wallets`).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "asset", "balance", "locked_balance",
		}).AddRow(5, 42, "BTC", "1", "0"))

	sheet, err := svc.ValuedBalances(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sheet.TotalUSDT.String(); got != "0" {
		t.Errorf("total = %s, want 0", got)
	}
}
