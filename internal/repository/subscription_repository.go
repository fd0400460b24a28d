package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// SubscriptionRepository - доступ к таблице bot_subscriptions
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository создает новый SubscriptionRepository
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, bot_id, allocated_usdt, fee_paid_usdt,
	is_active, next_renewal_at, started_at, ended_at`

// CreateTx сохраняет подписку внутри транзакции (вместе со списанием
// комиссии и блокировкой инвестиции)
func (r *SubscriptionRepository) CreateTx(tx *sql.Tx, s *models.BotSubscription) error {
	return tx.QueryRow(
		`INSERT INTO bot_subscriptions (user_id, bot_id, allocated_usdt,
		   fee_paid_usdt, is_active, next_renewal_at, started_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		 RETURNING id`,
		s.UserID, s.BotID, s.AllocatedUSDT, s.FeePaidUSDT,
		s.NextRenewalAt, s.StartedAt,
	).Scan(&s.ID)
}

// GetByID возвращает подписку по ID
func (r *SubscriptionRepository) GetByID(id int) (*models.BotSubscription, error) {
	return r.scanRow(r.db.QueryRow(
		`SELECT `+subscriptionColumns+` FROM bot_subscriptions WHERE id = $1`, id))
}

// GetActive возвращает активную подписку пользователя на бота
func (r *SubscriptionRepository) GetActive(userID, botID int) (*models.BotSubscription, error) {
	return r.scanRow(r.db.QueryRow(
		`SELECT `+subscriptionColumns+` FROM bot_subscriptions
		 WHERE user_id = $1 AND bot_id = $2 AND is_active = TRUE`,
		userID, botID))
}

// GetActiveTx возвращает активную подписку с блокировкой строки
func (r *SubscriptionRepository) GetActiveTx(tx *sql.Tx, userID, botID int) (*models.BotSubscription, error) {
	return r.scanRow(tx.QueryRow(
		`SELECT `+subscriptionColumns+` FROM bot_subscriptions
		 WHERE user_id = $1 AND bot_id = $2 AND is_active = TRUE
		 FOR UPDATE`,
		userID, botID))
}

// ListActiveByBot возвращает активные подписки на бота.
// Порядок фиксирован для детерминированного обхода в торговом цикле.
func (r *SubscriptionRepository) ListActiveByBot(botID int) ([]*models.BotSubscription, error) {
	rows, err := r.db.Query(
		`SELECT `+subscriptionColumns+` FROM bot_subscriptions
		 WHERE bot_id = $1 AND is_active = TRUE ORDER BY id`,
		botID,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListAllActive возвращает все активные подписки платформы
func (r *SubscriptionRepository) ListAllActive() ([]*models.BotSubscription, error) {
	rows, err := r.db.Query(
		`SELECT ` + subscriptionColumns + ` FROM bot_subscriptions
		 WHERE is_active = TRUE ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// CountActiveByBot возвращает число активных подписчиков бота
func (r *SubscriptionRepository) CountActiveByBot(botID int) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM bot_subscriptions
		 WHERE bot_id = $1 AND is_active = TRUE`,
		botID,
	).Scan(&n)
	return n, err
}

// ListActiveByUser возвращает активные подписки пользователя
func (r *SubscriptionRepository) ListActiveByUser(userID int) ([]*models.BotSubscription, error) {
	rows, err := r.db.Query(
		`SELECT `+subscriptionColumns+` FROM bot_subscriptions
		 WHERE user_id = $1 AND is_active = TRUE ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListDueForRenewal возвращает активные подписки, у которых наступил
// срок продления
func (r *SubscriptionRepository) ListDueForRenewal(now time.Time) ([]*models.BotSubscription, error) {
	rows, err := r.db.Query(
		`SELECT `+subscriptionColumns+` FROM bot_subscriptions
		 WHERE is_active = TRUE AND next_renewal_at <= $1 ORDER BY next_renewal_at`,
		now,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// AdvanceRenewalTx переносит срок следующего продления и фиксирует
// сумму уплаченной комиссии
func (r *SubscriptionRepository) AdvanceRenewalTx(tx *sql.Tx, id int, nextAt time.Time, feePaid decimal.Decimal) error {
	res, err := tx.Exec(
		`UPDATE bot_subscriptions SET next_renewal_at = $1, fee_paid_usdt = fee_paid_usdt + $2
		 WHERE id = $3 AND is_active = TRUE`,
		nextAt, feePaid, id,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrSubscriptionNotFound)
}

// DeactivateTx завершает подписку внутри транзакции
func (r *SubscriptionRepository) DeactivateTx(tx *sql.Tx, id int, endedAt time.Time) error {
	res, err := tx.Exec(
		`UPDATE bot_subscriptions SET is_active = FALSE, ended_at = $1
		 WHERE id = $2 AND is_active = TRUE`,
		endedAt, id,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrSubscriptionNotFound)
}

func (r *SubscriptionRepository) scanRow(row *sql.Row) (*models.BotSubscription, error) {
	s := &models.BotSubscription{}
	err := row.Scan(&s.ID, &s.UserID, &s.BotID, &s.AllocatedUSDT, &s.FeePaidUSDT,
		&s.IsActive, &s.NextRenewalAt, &s.StartedAt, &s.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriptionRepository) scanAll(rows *sql.Rows) ([]*models.BotSubscription, error) {
	defer rows.Close()
	var subs []*models.BotSubscription
	for rows.Next() {
		s := &models.BotSubscription{}
		err := rows.Scan(&s.ID, &s.UserID, &s.BotID, &s.AllocatedUSDT, &s.FeePaidUSDT,
			&s.IsActive, &s.NextRenewalAt, &s.StartedAt, &s.EndedAt)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
