package repository

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// FeeRepository - доступ к таблице fee_income (учет доходов платформы)
type FeeRepository struct {
	db *sql.DB
}

// NewFeeRepository создает новый FeeRepository
func NewFeeRepository(db *sql.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// CreateTx записывает доход от комиссии внутри транзакции списания.
// Запись появляется только вместе с успешным дебетом кошелька.
func (r *FeeRepository) CreateTx(tx *sql.Tx, f *models.FeeIncome) error {
	return tx.QueryRow(
		`INSERT INTO fee_income (user_id, bot_id, subscription_id, amount_usdt,
		   period, charged_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		f.UserID, f.BotID, f.SubscriptionID, f.AmountUSDT, f.Period, f.ChargedAt,
	).Scan(&f.ID)
}

// TotalForPeriod возвращает суммарный доход платформы за период
func (r *FeeRepository) TotalForPeriod(period string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(amount_usdt), 0) FROM fee_income WHERE period = $1`,
		period,
	).Scan(&total)
	return total, err
}

// UnsettledTotal возвращает суммарный нерассчитанный доход платформы
func (r *FeeRepository) UnsettledTotal() (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(amount_usdt), 0) FROM fee_income
		 WHERE settled_at IS NULL`,
	).Scan(&total)
	return total, err
}

// SettleByBot помечает все нерассчитанные записи дохода бота как
// рассчитанные. Возвращает количество затронутых записей.
func (r *FeeRepository) SettleByBot(botID int, at time.Time) (int64, error) {
	res, err := r.db.Exec(
		`UPDATE fee_income SET settled_at = $1
		 WHERE bot_id = $2 AND settled_at IS NULL`,
		at, botID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByBot возвращает записи дохода по боту
func (r *FeeRepository) ListByBot(botID int) ([]*models.FeeIncome, error) {
	rows, err := r.db.Query(
		`SELECT id, user_id, bot_id, subscription_id, amount_usdt, period,
		   charged_at, settled_at
		 FROM fee_income WHERE bot_id = $1 ORDER BY charged_at DESC`,
		botID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.FeeIncome
	for rows.Next() {
		f := &models.FeeIncome{}
		err := rows.Scan(&f.ID, &f.UserID, &f.BotID, &f.SubscriptionID,
			&f.AmountUSDT, &f.Period, &f.ChargedAt, &f.SettledAt)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
