package settlement

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
)

// Типизированные ошибки движка исполнения
var (
	ErrNoMarketData     = errors.New("no market price, order left open")
	ErrOrderNotOpen     = errors.New("order is not open")
	ErrUnsupportedOrder = errors.New("only market orders are settled internally")
)

// Engine - движок внутреннего исполнения рыночных ордеров.
//
// Назначение:
// Исполняет рыночный ордер полным объемом по последней цене оракула
// и проводит расчеты по кошелькам в одной транзакции БД:
//
//   BUY:  списание quote (цена * количество), зачисление base
//   SELL: списание base, зачисление quote
//
// Смена статуса ордера, запись сделки и обе проводки фиксируются
// одним COMMIT. Любая ошибка внутри транзакции (включая нехватку
// средств) откатывает все целиком, ордер остается открытым.
type Engine struct {
	db     *sql.DB
	ledger *ledger.Ledger
	orders *repository.OrderRepository
	oracle market.Oracle
	log    *zap.Logger
	notify func(order *models.Order, trade *models.Trade)
}

// NewEngine создает движок исполнения
func NewEngine(db *sql.DB, lg *ledger.Ledger, orders *repository.OrderRepository, oracle market.Oracle, log *zap.Logger) *Engine {
	return &Engine{db: db, ledger: lg, orders: orders, oracle: oracle, log: log}
}

// OnTrade регистрирует callback, вызываемый после каждого успешного
// расчета (ручные ордера и ордера ботов). Вызов идет после COMMIT.
func (e *Engine) OnTrade(fn func(order *models.Order, trade *models.Trade)) {
	e.notify = fn
}

// Settle исполняет открытый рыночный ордер и возвращает сделку.
//
// Без цены оракула возвращается ErrNoMarketData и состояние не
// меняется: ордер остается открытым до следующей попытки.
func (e *Engine) Settle(order *models.Order) (*models.Trade, error) {
	if order.Status != models.OrderStatusOpen {
		return nil, ErrOrderNotOpen
	}
	if order.Type != models.OrderTypeMarket {
		return nil, ErrUnsupportedOrder
	}

	price, err := e.oracle.LastPrice(order.Pair)
	if err != nil {
		if errors.Is(err, market.ErrNoMarketData) {
			return nil, ErrNoMarketData
		}
		return nil, err
	}

	base, quote, err := models.SplitPair(order.Pair)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	trade, err := e.settleTx(tx, order, base, quote, price)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	e.log.Info("order settled",
		zap.Int("order_id", order.ID),
		zap.Int("user_id", order.UserID),
		zap.String("pair", order.Pair),
		zap.String("side", order.Side),
		zap.String("price", price.String()),
		zap.String("quantity", order.Quantity.String()),
	)
	if e.notify != nil {
		e.notify(order, trade)
	}
	return trade, nil
}

func (e *Engine) settleTx(tx *sql.Tx, order *models.Order, base, quote string, price decimal.Decimal) (*models.Trade, error) {
	if order.Side != models.OrderSideBuy && order.Side != models.OrderSideSell {
		return nil, fmt.Errorf("unknown order side %q", order.Side)
	}
	cost := price.Mul(order.Quantity)

	// Оба кошелька блокируются в лексикографическом порядке активов
	// независимо от стороны: встречные ордера одного пользователя не
	// могут взять блокировки в противоположном порядке
	first, second := base, quote
	if second < first {
		first, second = second, first
	}
	wallets := make(map[string]*models.Wallet, 2)
	for _, asset := range []string{first, second} {
		w, err := e.ledger.LockRowOrCreate(tx, order.UserID, asset)
		if err != nil {
			return nil, err
		}
		wallets[asset] = w
	}

	if order.Side == models.OrderSideBuy {
		if err := e.ledger.DebitTx(tx, wallets[quote], cost); err != nil {
			return nil, err
		}
		if err := e.ledger.CreditTx(tx, wallets[base], order.Quantity); err != nil {
			return nil, err
		}
	} else {
		if err := e.ledger.DebitTx(tx, wallets[base], order.Quantity); err != nil {
			return nil, err
		}
		if err := e.ledger.CreditTx(tx, wallets[quote], cost); err != nil {
			return nil, err
		}
	}

	if err := e.orders.MarkFilledTx(tx, order.ID, order.Quantity); err != nil {
		return nil, err
	}

	trade := &models.Trade{
		OrderID:    order.ID,
		Price:      price,
		Quantity:   order.Quantity,
		ExecutedAt: time.Now().UTC(),
	}
	if err := e.orders.InsertTradeTx(tx, trade); err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	return trade, nil
}

// PlaceAndSettle создает рыночный ордер и сразу исполняет его.
// При отсутствии цены ордер сохраняется открытым и возвращается
// ErrNoMarketData вместе с созданным ордером.
func (e *Engine) PlaceAndSettle(order *models.Order) (*models.Trade, error) {
	order.Type = models.OrderTypeMarket
	order.Status = models.OrderStatusOpen

	if err := e.orders.Create(order); err != nil {
		return nil, err
	}
	return e.Settle(order)
}
