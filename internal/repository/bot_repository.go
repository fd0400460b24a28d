package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// BotRepository - доступ к таблицам bots и bot_performance
type BotRepository struct {
	db *sql.DB
}

// NewBotRepository создает новый BotRepository
func NewBotRepository(db *sql.DB) *BotRepository {
	return &BotRepository{db: db}
}

const botColumns = `id, name, description, strategy_type, strategy_config,
	status, monthly_fee, max_drawdown_limit, created_at, evicted_at`

// Create сохраняет нового бота
func (r *BotRepository) Create(b *models.Bot) error {
	return r.db.QueryRow(
		`INSERT INTO bots (name, description, strategy_type, strategy_config,
		   status, monthly_fee, max_drawdown_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		b.Name, b.Description, b.StrategyType, b.StrategyConfig,
		b.Status, b.MonthlyFee, b.MaxDrawdownLimit,
	).Scan(&b.ID, &b.CreatedAt)
}

// GetByID возвращает бота по ID
func (r *BotRepository) GetByID(id int) (*models.Bot, error) {
	return r.scan(r.db.QueryRow(
		`SELECT `+botColumns+` FROM bots WHERE id = $1`, id))
}

// ListActive возвращает всех активных ботов
func (r *BotRepository) ListActive() ([]*models.Bot, error) {
	rows, err := r.db.Query(
		`SELECT `+botColumns+` FROM bots WHERE status = $1 ORDER BY id`,
		models.BotStatusActive,
	)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// ListAll возвращает всех ботов, включая выведенных с витрины
func (r *BotRepository) ListAll() ([]*models.Bot, error) {
	rows, err := r.db.Query(`SELECT ` + botColumns + ` FROM bots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return r.scanAll(rows)
}

// Evict выводит бота с витрины. Новые подписки на него невозможны,
// существующие продолжают действовать до отписки или неуплаты.
func (r *BotRepository) Evict(id int, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE bots SET status = $1, evicted_at = $2 WHERE id = $3`,
		models.BotStatusEvicted, at, id,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrBotNotFound)
}

// UpdateConfig обновляет конфигурацию стратегии бота
func (r *BotRepository) UpdateConfig(id int, config []byte) error {
	res, err := r.db.Exec(
		`UPDATE bots SET strategy_config = $1 WHERE id = $2`, config, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrBotNotFound)
}

// ============ bot_performance ============

// UpsertPerformance записывает метрики бота за период (идемпотентно)
func (r *BotRepository) UpsertPerformance(p *models.BotPerformance) error {
	return r.db.QueryRow(
		`INSERT INTO bot_performance (bot_id, period, win_rate, monthly_return_pct,
		   max_drawdown_pct, sharpe_ratio, total_trades, calculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (bot_id, period) DO UPDATE SET
		   win_rate = EXCLUDED.win_rate,
		   monthly_return_pct = EXCLUDED.monthly_return_pct,
		   max_drawdown_pct = EXCLUDED.max_drawdown_pct,
		   sharpe_ratio = EXCLUDED.sharpe_ratio,
		   total_trades = EXCLUDED.total_trades,
		   calculated_at = EXCLUDED.calculated_at
		 RETURNING id`,
		p.BotID, p.Period, p.WinRate, p.MonthlyReturnPct,
		p.MaxDrawdownPct, p.SharpeRatio, p.TotalTrades, p.CalculatedAt,
	).Scan(&p.ID)
}

// GetPerformance возвращает снимок метрик бота за период
func (r *BotRepository) GetPerformance(botID int, period string) (*models.BotPerformance, error) {
	p := &models.BotPerformance{}
	err := r.db.QueryRow(
		`SELECT id, bot_id, period, win_rate, monthly_return_pct,
		   max_drawdown_pct, sharpe_ratio, total_trades, calculated_at
		 FROM bot_performance WHERE bot_id = $1 AND period = $2`,
		botID, period,
	).Scan(&p.ID, &p.BotID, &p.Period, &p.WinRate, &p.MonthlyReturnPct,
		&p.MaxDrawdownPct, &p.SharpeRatio, &p.TotalTrades, &p.CalculatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPerformanceNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPerformance возвращает историю метрик бота по периодам
func (r *BotRepository) ListPerformance(botID int) ([]*models.BotPerformance, error) {
	rows, err := r.db.Query(
		`SELECT id, bot_id, period, win_rate, monthly_return_pct,
		   max_drawdown_pct, sharpe_ratio, total_trades, calculated_at
		 FROM bot_performance WHERE bot_id = $1 ORDER BY period DESC`,
		botID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perfs []*models.BotPerformance
	for rows.Next() {
		p := &models.BotPerformance{}
		err := rows.Scan(&p.ID, &p.BotID, &p.Period, &p.WinRate, &p.MonthlyReturnPct,
			&p.MaxDrawdownPct, &p.SharpeRatio, &p.TotalTrades, &p.CalculatedAt)
		if err != nil {
			return nil, err
		}
		perfs = append(perfs, p)
	}
	return perfs, rows.Err()
}

func (r *BotRepository) scan(row *sql.Row) (*models.Bot, error) {
	b := &models.Bot{}
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.StrategyType, &b.StrategyConfig,
		&b.Status, &b.MonthlyFee, &b.MaxDrawdownLimit, &b.CreatedAt, &b.EvictedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *BotRepository) scanAll(rows *sql.Rows) ([]*models.Bot, error) {
	defer rows.Close()
	var bots []*models.Bot
	for rows.Next() {
		b := &models.Bot{}
		err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.StrategyType, &b.StrategyConfig,
			&b.Status, &b.MonthlyFee, &b.MaxDrawdownLimit, &b.CreatedAt, &b.EvictedAt)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}
