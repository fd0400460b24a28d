package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/bot"
	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/stats"
	"github.com/forlabsio/crypto-exchange/pkg/utils"
)

// BotService - витрина ботов и административные операции.
//
// Подписки и деньги идут через subscription.Manager, здесь только
// чтение каталога, метрики и управление ботами.
type BotService struct {
	bots   *repository.BotRepository
	subs   *repository.SubscriptionRepository
	fees   *repository.FeeRepository
	orders *repository.OrderRepository
	state  bot.StateStore
	oracle market.Oracle
	log    *zap.Logger
}

// NewBotService создает сервис ботов
func NewBotService(bots *repository.BotRepository, subs *repository.SubscriptionRepository, fees *repository.FeeRepository, orders *repository.OrderRepository, state bot.StateStore, oracle market.Oracle, log *zap.Logger) *BotService {
	return &BotService{bots: bots, subs: subs, fees: fees, orders: orders, state: state, oracle: oracle, log: log}
}

// ListActive возвращает ботов, доступных для подписки
func (s *BotService) ListActive() ([]*models.Bot, error) {
	return s.bots.ListActive()
}

// Get возвращает бота по ID
func (s *BotService) Get(botID int) (*models.Bot, error) {
	return s.bots.GetByID(botID)
}

// Performance возвращает историю метрик бота
func (s *BotService) Performance(botID int) ([]*models.BotPerformance, error) {
	if _, err := s.bots.GetByID(botID); err != nil {
		return nil, err
	}
	return s.bots.ListPerformance(botID)
}

// UserSubscriptions возвращает активные подписки пользователя
func (s *BotService) UserSubscriptions(userID int) ([]*models.BotSubscription, error) {
	return s.subs.ListActiveByUser(userID)
}

// SubscriberStats реплеит историю сделок бота для одного подписчика
// и возвращает его персональные метрики. База доходности - выделенный
// подпиской капитал, незакрытая позиция переоценивается по текущей
// цене оракула. Без активной подписки метрик нет.
func (s *BotService) SubscriberStats(userID, botID int) (*stats.Report, error) {
	b, err := s.bots.GetByID(botID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.GetActive(userID, botID)
	if err != nil {
		return nil, err
	}
	cfg, err := bot.ParseStrategyConfig(b.StrategyConfig)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListFilledBotOrders(userID, botID)
	if err != nil {
		return nil, err
	}

	fills := make([]stats.Fill, 0, len(orders))
	for _, o := range orders {
		trade, err := s.orders.GetTradeByOrderID(o.ID)
		if err != nil {
			return nil, err
		}
		fills = append(fills, stats.Fill{
			Side:     o.Side,
			Price:    trade.Price,
			Quantity: trade.Quantity,
		})
	}

	markPrice := decimal.Zero
	if s.oracle != nil {
		if price, err := s.oracle.LastPrice(cfg.Pair); err == nil {
			markPrice = price
		}
	}

	report := stats.Compute(fills, sub.AllocatedUSDT, markPrice)
	return &report, nil
}

// ============ Администрирование ============

// CreateBot добавляет нового бота на витрину.
// Конфигурация стратегии валидируется разбором.
func (s *BotService) CreateBot(b *models.Bot) error {
	if _, err := bot.ParseStrategyConfig(b.StrategyConfig); err != nil {
		return err
	}
	if b.Status == "" {
		b.Status = models.BotStatusActive
	}
	if err := s.bots.Create(b); err != nil {
		return err
	}
	s.log.Info("bot created", zap.Int("bot_id", b.ID), zap.String("name", b.Name))
	return nil
}

// UpdateBotConfig заменяет конфигурацию стратегии бота.
// Новая конфигурация валидируется разбором до записи.
func (s *BotService) UpdateBotConfig(botID int, config []byte) error {
	if _, err := bot.ParseStrategyConfig(config); err != nil {
		return err
	}
	if err := s.bots.UpdateConfig(botID, config); err != nil {
		return err
	}
	s.log.Info("bot config updated", zap.Int("bot_id", botID))
	return nil
}

// AdminBotView - бот со счетчиком подписчиков и последним снимком
// метрик для административной витрины
type AdminBotView struct {
	*models.Bot
	SubscriberCount int                    `json:"subscriber_count"`
	Performance     *models.BotPerformance `json:"performance"`
}

// AdminList возвращает всех ботов, включая выведенных с витрины,
// с числом активных подписчиков и метриками текущего периода
func (s *BotService) AdminList() ([]AdminBotView, error) {
	bots, err := s.bots.ListAll()
	if err != nil {
		return nil, err
	}

	views := make([]AdminBotView, 0, len(bots))
	for _, b := range bots {
		count, err := s.subs.CountActiveByBot(b.ID)
		if err != nil {
			return nil, err
		}
		perf, err := s.bots.GetPerformance(b.ID, utils.CurrentPeriod())
		if err != nil && !errors.Is(err, repository.ErrPerformanceNotFound) {
			return nil, err
		}
		views = append(views, AdminBotView{Bot: b, SubscriberCount: count, Performance: perf})
	}
	return views, nil
}

// FeeSummary - сводка дохода платформы
type FeeSummary struct {
	Period         string          `json:"period"`
	PeriodTotal    decimal.Decimal `json:"period_total"`
	UnsettledTotal decimal.Decimal `json:"unsettled_total"`
}

// PlatformFeeSummary возвращает доход платформы за текущий период и
// суммарный нерассчитанный остаток по всем ботам
func (s *BotService) PlatformFeeSummary() (*FeeSummary, error) {
	period := utils.CurrentPeriod()
	periodTotal, err := s.fees.TotalForPeriod(period)
	if err != nil {
		return nil, err
	}
	unsettled, err := s.fees.UnsettledTotal()
	if err != nil {
		return nil, err
	}
	return &FeeSummary{Period: period, PeriodTotal: periodTotal, UnsettledTotal: unsettled}, nil
}

// EvictBot снимает бота с витрины и останавливает его торговлю
func (s *BotService) EvictBot(ctx context.Context, botID int) error {
	if err := s.state.SetKillSwitch(ctx, botID, true); err != nil {
		return err
	}
	if err := s.bots.Evict(botID, time.Now().UTC()); err != nil {
		return err
	}
	s.log.Info("bot evicted", zap.Int("bot_id", botID))
	return nil
}

// SetKillSwitch включает или выключает торговлю бота
func (s *BotService) SetKillSwitch(ctx context.Context, botID int, on bool) error {
	if _, err := s.bots.GetByID(botID); err != nil {
		return err
	}
	if err := s.state.SetKillSwitch(ctx, botID, on); err != nil {
		return err
	}
	s.log.Info("kill switch toggled", zap.Int("bot_id", botID), zap.Bool("on", on))
	return nil
}

// FeeIncome возвращает записи дохода платформы по боту
func (s *BotService) FeeIncome(botID int) ([]*models.FeeIncome, error) {
	return s.fees.ListByBot(botID)
}

// SettleFees помечает накопленный доход бота как рассчитанный с
// операторами. Возвращает количество закрытых записей.
func (s *BotService) SettleFees(botID int) (int64, error) {
	if _, err := s.bots.GetByID(botID); err != nil {
		return 0, err
	}
	n, err := s.fees.SettleByBot(botID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.log.Info("fee income settled", zap.Int("bot_id", botID), zap.Int64("records", n))
	return n, nil
}
