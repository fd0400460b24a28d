package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/pkg/retry"
)

// Типизированные ошибки верификации депозитов
var (
	ErrTxNotFound         = errors.New("transaction not found on chain")
	ErrTxFailed           = errors.New("transaction reverted")
	ErrTxPending          = errors.New("transaction is still pending")
	ErrNotEnoughConfirms  = errors.New("not enough confirmations")
	ErrNoTransferToVault  = errors.New("no usdt transfer to the platform address")
)

// Сигнатура события Transfer(address,address,uint256)
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// USDT на Polygon использует 6 десятичных знаков
const usdtDecimals = 6

// VerifiedDeposit - результат успешной верификации
type VerifiedDeposit struct {
	TxHash      string
	FromAddress string
	Amount      decimal.Decimal
	BlockNumber uint64
}

// PolygonVerifier - верификация USDT-депозитов в сети Polygon.
//
// Назначение:
// Для заявленного пользователем tx hash проверяет по RPC-ноде:
// транзакция исполнена успешно, набрала требуемое число подтверждений
// и содержит событие Transfer контракта USDT в пользу депозитного
// адреса платформы. Сумма берется из события, а не со слов
// пользователя.
type PolygonVerifier struct {
	client       *ethclient.Client
	usdtContract common.Address
	vault        common.Address
	minConfirms  uint64
	timeout      time.Duration
	log          *zap.Logger
}

// NewPolygonVerifier подключается к RPC-ноде Polygon
func NewPolygonVerifier(rpcURL, usdtContract, depositAddress string, minConfirms int, timeout time.Duration, log *zap.Logger) (*PolygonVerifier, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial polygon rpc: %w", err)
	}
	return &PolygonVerifier{
		client:       client,
		usdtContract: common.HexToAddress(usdtContract),
		vault:        common.HexToAddress(depositAddress),
		minConfirms:  uint64(minConfirms),
		timeout:      timeout,
		log:          log,
	}, nil
}

// Close закрывает RPC-соединение
func (v *PolygonVerifier) Close() {
	v.client.Close()
}

// Verify проверяет транзакцию депозита по хешу
func (v *PolygonVerifier) Verify(ctx context.Context, txHash string) (*VerifiedDeposit, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	hash := common.HexToHash(txHash)

	// Транзиентные сбои RPC-ноды ретраятся, отсутствие транзакции
	// в сети ретраем не является
	cfg := retry.NetworkConfig()
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, ethereum.NotFound)
	}
	receipt, err := retry.DoWithResult(ctx, func() (*types.Receipt, error) {
		return v.client.TransactionReceipt(ctx, hash)
	}, cfg)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrTxNotFound
		}
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, ErrTxFailed
	}
	if receipt.BlockNumber == nil {
		return nil, ErrTxPending
	}

	head, err := v.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head block: %w", err)
	}
	confirms := head - receipt.BlockNumber.Uint64() + 1
	if confirms < v.minConfirms {
		return nil, fmt.Errorf("%w: %d of %d", ErrNotEnoughConfirms, confirms, v.minConfirms)
	}

	transfer := v.findVaultTransfer(receipt.Logs)
	if transfer == nil {
		return nil, ErrNoTransferToVault
	}

	from := common.BytesToAddress(transfer.Topics[1].Bytes())
	amount := decimal.NewFromBigInt(new(big.Int).SetBytes(transfer.Data), -usdtDecimals)

	v.log.Info("deposit verified on chain",
		zap.String("tx_hash", strings.ToLower(txHash)),
		zap.String("from", strings.ToLower(from.Hex())),
		zap.String("amount_usdt", amount.String()),
		zap.Uint64("confirmations", confirms),
	)
	return &VerifiedDeposit{
		TxHash:      strings.ToLower(txHash),
		FromAddress: strings.ToLower(from.Hex()),
		Amount:      amount,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// findVaultTransfer ищет событие Transfer контракта USDT в пользу
// депозитного адреса платформы
func (v *PolygonVerifier) findVaultTransfer(logs []*types.Log) *types.Log {
	for _, l := range logs {
		if l.Address != v.usdtContract {
			continue
		}
		if len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		to := common.BytesToAddress(l.Topics[2].Bytes())
		if to == v.vault {
			return l
		}
	}
	return nil
}
