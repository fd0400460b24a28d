package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/chain"
	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/pkg/utils"
)

// Типизированные ошибки кошельковых операций
var (
	ErrInvalidTxHash      = errors.New("invalid transaction hash")
	ErrDepositNotVerified = errors.New("deposit could not be verified on chain")
)

// DepositVerifier - проверка депозита в сети
type DepositVerifier interface {
	Verify(ctx context.Context, txHash string) (*chain.VerifiedDeposit, error)
}

// WalletService - балансы и депозиты.
//
// Назначение:
// Выдача балансов пользователя и прием on-chain депозитов USDT.
// Депозит зачисляется только после верификации транзакции в сети,
// сумма берется из события Transfer. Повторная подача того же хеша
// отклоняется уникальным индексом.
type WalletService struct {
	ledger   *ledger.Ledger
	deposits *repository.DepositRepository
	verifier DepositVerifier
	oracle   market.Oracle
	log      *zap.Logger
}

// NewWalletService создает сервис кошельков
func NewWalletService(lg *ledger.Ledger, deposits *repository.DepositRepository, verifier DepositVerifier, oracle market.Oracle, log *zap.Logger) *WalletService {
	return &WalletService{ledger: lg, deposits: deposits, verifier: verifier, oracle: oracle, log: log}
}

// ValuedWallet - кошелек с оценкой в USDT по последней цене оракула
type ValuedWallet struct {
	*models.Wallet
	USDTValue decimal.Decimal `json:"usdt_value"`
}

// BalanceSheet - все кошельки пользователя с суммарной оценкой
type BalanceSheet struct {
	Wallets   []ValuedWallet  `json:"wallets"`
	TotalUSDT decimal.Decimal `json:"total_usdt"`
}

// Balances возвращает все кошельки пользователя
func (s *WalletService) Balances(userID int) ([]*models.Wallet, error) {
	return s.ledger.ListByUser(userID)
}

// ValuedBalances возвращает кошельки пользователя с оценкой каждого
// актива в USDT. Актив без рыночной цены оценивается нулем, ошибки
// оракула баланс не скрывают.
func (s *WalletService) ValuedBalances(userID int) (*BalanceSheet, error) {
	wallets, err := s.ledger.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	sheet := &BalanceSheet{Wallets: make([]ValuedWallet, 0, len(wallets))}
	for _, w := range wallets {
		total := w.Balance.Add(w.Locked)
		value := decimal.Zero
		if w.Asset == models.QuoteAsset {
			value = total
		} else if s.oracle != nil {
			price, err := s.oracle.LastPrice(w.Asset + "_" + models.QuoteAsset)
			if err == nil {
				value = total.Mul(price)
			}
		}
		sheet.Wallets = append(sheet.Wallets, ValuedWallet{Wallet: w, USDTValue: value})
		sheet.TotalUSDT = sheet.TotalUSDT.Add(value)
	}
	return sheet, nil
}

// Balance возвращает кошелек пользователя по активу, создавая
// нулевой при отсутствии
func (s *WalletService) Balance(userID int, asset string) (*models.Wallet, error) {
	return s.ledger.GetOrCreate(userID, asset)
}

// SubmitDeposit проверяет заявленный tx hash в сети и зачисляет
// подтвержденную сумму на кошелек пользователя
func (s *WalletService) SubmitDeposit(ctx context.Context, userID int, txHash string) (*models.DepositTransaction, error) {
	if !utils.IsValidTxHash(utils.NormalizeTxHash(txHash)) {
		return nil, ErrInvalidTxHash
	}
	txHash = utils.NormalizeTxHash(txHash)

	// Повторная подача уже учтенного хеша отклоняется до обращения
	// к сети, уникальный индекс остается финальной защитой
	if _, err := s.deposits.GetByTxHash(txHash); err == nil {
		return nil, repository.ErrDepositAlreadySeen
	} else if !errors.Is(err, repository.ErrDepositNotFound) {
		return nil, err
	}

	verified, err := s.verifier.Verify(ctx, txHash)
	if err != nil {
		s.log.Warn("deposit verification failed",
			zap.Int("user_id", userID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return nil, errors.Join(ErrDepositNotVerified, err)
	}

	deposit := &models.DepositTransaction{
		UserID:      userID,
		TxHash:      verified.TxHash,
		AmountUSDT:  verified.Amount,
		FromAddress: verified.FromAddress,
		Status:      models.DepositStatusPending,
	}
	if err := s.deposits.Create(deposit); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Credit(userID, models.QuoteAsset, verified.Amount); err != nil {
		markErr := s.deposits.MarkFailed(deposit.ID)
		if markErr != nil {
			s.log.Error("mark deposit failed", zap.Int("deposit_id", deposit.ID), zap.Error(markErr))
		}
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.deposits.MarkConfirmed(deposit.ID, now); err != nil {
		return nil, err
	}
	deposit.Status = models.DepositStatusConfirmed
	deposit.ConfirmedAt = &now

	s.log.Info("deposit credited",
		zap.Int("user_id", userID),
		zap.String("tx_hash", txHash),
		zap.String("amount_usdt", verified.Amount.String()),
	)
	return deposit, nil
}

// Deposits возвращает историю депозитов пользователя
func (s *WalletService) Deposits(userID int) ([]*models.DepositTransaction, error) {
	return s.deposits.ListByUser(userID)
}

// AdminCredit пополняет кошелек пользователя вручную
func (s *WalletService) AdminCredit(userID int, asset string, amount decimal.Decimal) (*models.Wallet, error) {
	w, err := s.ledger.Credit(userID, asset, amount)
	if err != nil {
		return nil, err
	}
	s.log.Info("admin credit",
		zap.Int("user_id", userID),
		zap.String("asset", asset),
		zap.String("amount", amount.String()),
	)
	return w, nil
}
