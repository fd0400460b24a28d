package stats

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/bot"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/pkg/utils"
)

// Job - агрегатор производительности ботов.
//
// Назначение:
// Периодически снимает метрики каждой активной подписки каждого
// активного бота по истории до начала текущих суток и идемпотентно
// сохраняет усредненный по подписчикам результат в bot_performance.
// Срез исторический, поэтому незакрытая позиция не переоценивается.
// При превышении лимита просадки худшим подписчиком включается kill
// switch бота и бот снимается с витрины.
type Job struct {
	bots   *repository.BotRepository
	subs   *repository.SubscriptionRepository
	orders *repository.OrderRepository
	state  bot.StateStore
	log    *zap.Logger
}

// NewJob создает агрегатор производительности
func NewJob(bots *repository.BotRepository, subs *repository.SubscriptionRepository, orders *repository.OrderRepository, state bot.StateStore, log *zap.Logger) *Job {
	return &Job{bots: bots, subs: subs, orders: orders, state: state, log: log}
}

// Run пересчитывает метрики всех активных ботов
func (j *Job) Run(ctx context.Context) {
	bots, err := j.bots.ListActive()
	if err != nil {
		j.log.Error("list active bots failed", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, b := range bots {
		if err := j.runOne(ctx, b, now); err != nil {
			j.log.Error("performance calculation failed",
				zap.Int("bot_id", b.ID), zap.Error(err))
		}
	}
}

func (j *Job) runOne(ctx context.Context, b *models.Bot, now time.Time) error {
	subs, err := j.subs.ListActiveByBot(b.ID)
	if err != nil {
		return err
	}

	cutoff := utils.DayStart(now)

	var (
		winRate, returnPct, sharpeRatio float64
		worstDrawdown                   float64
		totalTrades, counted            int
	)
	for _, sub := range subs {
		report, err := j.subscriberReport(sub, b.ID, cutoff)
		if err != nil {
			return err
		}
		totalTrades += report.TotalTrades
		if report.TotalTrades == 0 {
			continue
		}
		counted++
		winRate += report.WinRate
		returnPct += report.PnlPct
		sharpeRatio += report.SharpeRatio
		if report.MaxDrawdownPct > worstDrawdown {
			worstDrawdown = report.MaxDrawdownPct
		}
	}
	if counted > 0 {
		winRate /= float64(counted)
		returnPct /= float64(counted)
		sharpeRatio /= float64(counted)
	}

	perf := &models.BotPerformance{
		BotID:            b.ID,
		Period:           utils.Period(now),
		WinRate:          decimal.NewFromFloat(winRate),
		MonthlyReturnPct: decimal.NewFromFloat(returnPct),
		MaxDrawdownPct:   decimal.NewFromFloat(worstDrawdown),
		SharpeRatio:      decimal.NewFromFloat(sharpeRatio),
		TotalTrades:      totalTrades,
		CalculatedAt:     now,
	}
	if err := j.bots.UpsertPerformance(perf); err != nil {
		return err
	}

	j.log.Info("bot performance updated",
		zap.Int("bot_id", b.ID),
		zap.String("period", perf.Period),
		zap.Int("subscribers", len(subs)),
		zap.Float64("win_rate", winRate),
		zap.Float64("return_pct", returnPct),
		zap.Float64("max_drawdown_pct", worstDrawdown),
		zap.Int("total_trades", totalTrades),
	)

	// Превышение лимита просадки останавливает торговлю немедленно
	limit, _ := b.MaxDrawdownLimit.Float64()
	if limit > 0 && worstDrawdown > limit {
		j.log.Warn("max drawdown limit breached, evicting bot",
			zap.Int("bot_id", b.ID),
			zap.Float64("drawdown_pct", worstDrawdown),
			zap.Float64("limit_pct", limit),
		)
		if err := j.state.SetKillSwitch(ctx, b.ID, true); err != nil {
			j.log.Error("enable kill switch failed", zap.Int("bot_id", b.ID), zap.Error(err))
		}
		if err := j.bots.Evict(b.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// subscriberReport реплеит историю одной подписки до cutoff
func (j *Job) subscriberReport(sub *models.BotSubscription, botID int, cutoff time.Time) (Report, error) {
	orders, err := j.orders.ListFilledBotOrdersBefore(sub.UserID, botID, cutoff)
	if err != nil {
		return Report{}, err
	}

	fills := make([]Fill, 0, len(orders))
	for _, o := range orders {
		trade, err := j.orders.GetTradeByOrderID(o.ID)
		if err != nil {
			return Report{}, err
		}
		fills = append(fills, Fill{
			Side:     o.Side,
			Price:    trade.Price,
			Quantity: trade.Quantity,
		})
	}
	return Compute(fills, sub.AllocatedUSDT, decimal.Zero), nil
}
