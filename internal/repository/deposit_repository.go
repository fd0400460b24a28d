package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// DepositRepository - доступ к таблице deposit_transactions
type DepositRepository struct {
	db *sql.DB
}

// NewDepositRepository создает новый DepositRepository
func NewDepositRepository(db *sql.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create сохраняет заявку на зачисление депозита.
// tx_hash уникален, поэтому повторная подача того же хеша
// возвращает ErrDepositAlreadySeen.
func (r *DepositRepository) Create(d *models.DepositTransaction) error {
	err := r.db.QueryRow(
		`INSERT INTO deposit_transactions (user_id, tx_hash, amount_usdt,
		   from_address, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		d.UserID, d.TxHash, d.AmountUSDT, d.FromAddress, d.Status,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDepositAlreadySeen
		}
		return err
	}
	return nil
}

// GetByTxHash возвращает депозит по хешу транзакции
func (r *DepositRepository) GetByTxHash(txHash string) (*models.DepositTransaction, error) {
	d := &models.DepositTransaction{}
	err := r.db.QueryRow(
		`SELECT id, user_id, tx_hash, amount_usdt, from_address, status,
		   confirmed_at, created_at
		 FROM deposit_transactions WHERE tx_hash = $1`, txHash,
	).Scan(&d.ID, &d.UserID, &d.TxHash, &d.AmountUSDT, &d.FromAddress,
		&d.Status, &d.ConfirmedAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, err
	}
	return d, nil
}

// MarkConfirmed помечает депозит подтвержденным
func (r *DepositRepository) MarkConfirmed(id int, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE deposit_transactions SET status = $1, confirmed_at = $2 WHERE id = $3`,
		models.DepositStatusConfirmed, at, id,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrDepositNotFound)
}

// MarkFailed помечает депозит отклоненным
func (r *DepositRepository) MarkFailed(id int) error {
	res, err := r.db.Exec(
		`UPDATE deposit_transactions SET status = $1 WHERE id = $2`,
		models.DepositStatusFailed, id,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrDepositNotFound)
}

// ListByUser возвращает депозиты пользователя
func (r *DepositRepository) ListByUser(userID int) ([]*models.DepositTransaction, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, tx_hash, amount_usdt, from_address, status,
		   confirmed_at, created_at
		 FROM deposit_transactions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []*models.DepositTransaction
	for rows.Next() {
		d := &models.DepositTransaction{}
		err := rows.Scan(&d.ID, &d.UserID, &d.TxHash, &d.AmountUSDT, &d.FromAddress,
			&d.Status, &d.ConfirmedAt, &d.CreatedAt)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}
