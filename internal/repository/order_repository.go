package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// OrderRepository - доступ к таблицам orders и trades
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый OrderRepository
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, user_id, pair, side, type, price, quantity,
	filled_quantity, status, is_bot_order, bot_id, created_at`

// Create сохраняет новый ордер и возвращает его ID
func (r *OrderRepository) Create(o *models.Order) error {
	return r.db.QueryRow(
		`INSERT INTO orders (user_id, pair, side, type, price, quantity,
		   filled_quantity, status, is_bot_order, bot_id)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
		 RETURNING id, created_at`,
		o.UserID, o.Pair, o.Side, o.Type, o.Price, o.Quantity,
		o.Status, o.IsBotOrder, o.BotID,
	).Scan(&o.ID, &o.CreatedAt)
}

// CreateTx сохраняет ордер внутри существующей транзакции
func (r *OrderRepository) CreateTx(tx *sql.Tx, o *models.Order) error {
	return tx.QueryRow(
		`INSERT INTO orders (user_id, pair, side, type, price, quantity,
		   filled_quantity, status, is_bot_order, bot_id)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
		 RETURNING id, created_at`,
		o.UserID, o.Pair, o.Side, o.Type, o.Price, o.Quantity,
		o.Status, o.IsBotOrder, o.BotID,
	).Scan(&o.ID, &o.CreatedAt)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int) (*models.Order, error) {
	return r.scan(r.db.QueryRow(
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// MarkFilledTx помечает ордер исполненным внутри транзакции settlement.
// filled_quantity становится равным quantity, так как исполнение
// происходит только полным объемом.
func (r *OrderRepository) MarkFilledTx(tx *sql.Tx, orderID int, qty decimal.Decimal) error {
	res, err := tx.Exec(
		`UPDATE orders SET status = $1, filled_quantity = $2 WHERE id = $3`,
		models.OrderStatusFilled, qty, orderID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrOrderNotFound)
}

// InsertTradeTx записывает сделку внутри транзакции settlement
func (r *OrderRepository) InsertTradeTx(tx *sql.Tx, t *models.Trade) error {
	return tx.QueryRow(
		`INSERT INTO trades (order_id, price, quantity, executed_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.OrderID, t.Price, t.Quantity, t.ExecutedAt,
	).Scan(&t.ID)
}

// ListByUser возвращает последние ордера пользователя
func (r *OrderRepository) ListByUser(userID int, limit int) ([]*models.Order, error) {
	rows, err := r.db.Query(
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListFilledBotOrders возвращает исполненные ордера бота для пользователя
// в хронологическом порядке. Используется при репрее задействованного
// капитала и при ликвидации остатков после отписки.
func (r *OrderRepository) ListFilledBotOrders(userID, botID int) ([]*models.Order, error) {
	rows, err := r.db.Query(
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 AND bot_id = $2 AND is_bot_order = TRUE AND status = $3
		 ORDER BY created_at ASC, id ASC`,
		userID, botID, models.OrderStatusFilled,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListFilledBotOrdersBefore возвращает исполненные ордера бота для
// пользователя, созданные строго раньше cutoff. Используется
// агрегатором производительности для исторических срезов.
func (r *OrderRepository) ListFilledBotOrdersBefore(userID, botID int, cutoff time.Time) ([]*models.Order, error) {
	rows, err := r.db.Query(
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 AND bot_id = $2 AND is_bot_order = TRUE
		   AND status = $3 AND created_at < $4
		 ORDER BY created_at ASC, id ASC`,
		userID, botID, models.OrderStatusFilled, cutoff,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// GetTradeByOrderID возвращает сделку для исполненного ордера
func (r *OrderRepository) GetTradeByOrderID(orderID int) (*models.Trade, error) {
	t := &models.Trade{}
	err := r.db.QueryRow(
		`SELECT id, order_id, price, quantity, executed_at
		 FROM trades WHERE order_id = $1`, orderID,
	).Scan(&t.ID, &t.OrderID, &t.Price, &t.Quantity, &t.ExecutedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *OrderRepository) scan(row *sql.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.UserID, &o.Pair, &o.Side, &o.Type, &o.Price,
		&o.Quantity, &o.FilledQuantity, &o.Status, &o.IsBotOrder, &o.BotID, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) scanAll(rows *sql.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var orders []*models.Order
	for rows.Next() {
		o := &models.Order{}
		err := rows.Scan(&o.ID, &o.UserID, &o.Pair, &o.Side, &o.Type, &o.Price,
			&o.Quantity, &o.FilledQuantity, &o.Status, &o.IsBotOrder, &o.BotID, &o.CreatedAt)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
