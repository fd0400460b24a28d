package bot

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/settlement"
)

// Точность количеств: 5 знаков после запятой
const quantityPrecision = 5

// Окно истории, запрашиваемое у оракула на одну итерацию
const closesWindow = 200

// HedgeExecutor - внешняя площадка для агрегатного хеджа.
// Заявка номинируется в котируемой валюте: суммарный выделенный
// капитал подписчиков одной рыночной заявкой.
type HedgeExecutor interface {
	PlaceQuoteMarketOrder(ctx context.Context, symbol, side string, quoteQty decimal.Decimal) error
}

// Runner - торговый цикл ботов.
//
// Назначение:
// Раз в RunInterval обходит активных ботов. Для каждого: проверяет
// kill switch и кулдаун, вычисляет сигнал стратегии и исполняет
// сделки по каждому активному подписчику изолированно. Ошибка по
// одному подписчику не прерывает обход остальных.
//
// Размер позиции подписчика:
//   BUY:  spend = min(trade_pct% от свободного USDT,
//                     allocated - задействованный капитал)
//   SELL: qty   = trade_pct% от свободного базового актива
//
// Задействованный капитал не хранится счетчиком, а реплеится из
// исполненных ордеров бота, поэтому он не может разойтись с историей.
type Runner struct {
	bots     *repository.BotRepository
	subs     *repository.SubscriptionRepository
	orders   *repository.OrderRepository
	ledger   *ledger.Ledger
	engine   *settlement.Engine
	oracle   market.Oracle
	state    StateStore
	hedge    HedgeExecutor
	interval time.Duration
	log      *zap.Logger

	shutdown chan struct{}
	done     chan struct{}
}

// NewRunner создает торговый цикл
func NewRunner(
	bots *repository.BotRepository,
	subs *repository.SubscriptionRepository,
	orders *repository.OrderRepository,
	lg *ledger.Ledger,
	engine *settlement.Engine,
	oracle market.Oracle,
	state StateStore,
	hedge HedgeExecutor,
	interval time.Duration,
	log *zap.Logger,
) *Runner {
	return &Runner{
		bots:     bots,
		subs:     subs,
		orders:   orders,
		ledger:   lg,
		engine:   engine,
		oracle:   oracle,
		state:    state,
		hedge:    hedge,
		interval: interval,
		log:      log,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start запускает торговый цикл в отдельной горутине
func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop останавливает цикл и дожидается завершения текущей итерации
func (r *Runner) Stop() {
	close(r.shutdown)
	<-r.done
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет одну итерацию по всем активным ботам
func (r *Runner) RunOnce(ctx context.Context) {
	bots, err := r.bots.ListActive()
	if err != nil {
		r.log.Error("list active bots failed", zap.Error(err))
		return
	}
	for _, b := range bots {
		r.processBot(ctx, b)
	}
}

func (r *Runner) processBot(ctx context.Context, b *models.Bot) {
	botLabel := strconv.Itoa(b.ID)
	start := time.Now()
	defer func() {
		iterationDuration.WithLabelValues(botLabel).Observe(time.Since(start).Seconds())
		iterationsTotal.WithLabelValues(botLabel).Inc()
	}()

	log := r.log.With(zap.Int("bot_id", b.ID), zap.String("bot", b.Name))

	// kill switch проверяется каждую итерацию, чтобы администратор
	// мог мгновенно остановить торговлю без рестарта процесса
	killed, err := r.state.KillSwitch(ctx, b.ID)
	if err != nil {
		log.Error("kill switch check failed", zap.Error(err))
		return
	}
	if killed {
		log.Debug("kill switch on, skipping bot")
		return
	}

	cfg, err := ParseStrategyConfig(b.StrategyConfig)
	if err != nil {
		log.Error("corrupt strategy config", zap.Error(err))
		return
	}
	if cfg.Pair == "" {
		log.Error("strategy config has no pair")
		return
	}

	// Кулдаун проверяется до вычисления сигнала: внутри кулдауна бот
	// не генерирует сигналы вовсе
	lastTrade, ok, err := r.state.LastTradeTime(ctx, b.ID)
	if err != nil {
		log.Error("cooldown check failed", zap.Error(err))
		return
	}
	if ok && time.Since(lastTrade) < cfg.Cooldown() {
		log.Debug("cooldown active, skipping bot")
		return
	}

	closes, err := r.oracle.RecentCloses(cfg.Pair, closesWindow)
	if err != nil {
		log.Warn("no market history yet", zap.String("pair", cfg.Pair), zap.Error(err))
		return
	}

	lastSide, _, err := r.state.LastSide(ctx, b.ID)
	if err != nil {
		log.Error("last side check failed", zap.Error(err))
		return
	}

	signal, err := Evaluate(b.StrategyType, cfg, closes, lastSide, log)
	if err != nil {
		log.Error("strategy evaluation failed", zap.Error(err))
		return
	}
	signalsTotal.WithLabelValues(botLabel, string(signal)).Inc()
	if signal == SignalNone {
		return
	}

	// Кулдаун и сторона фиксируются в момент генерации сигнала,
	// независимо от того, исполнился ли хоть один ордер
	now := time.Now().UTC()
	if err := r.state.SetLastTradeTime(ctx, b.ID, now); err != nil {
		log.Error("persist last trade time failed", zap.Error(err))
	}
	if err := r.state.SetLastSide(ctx, b.ID, signal); err != nil {
		log.Error("persist last side failed", zap.Error(err))
	}

	subs, err := r.subs.ListActiveByBot(b.ID)
	if err != nil {
		log.Error("list subscribers failed", zap.Error(err))
		return
	}

	r.executeForSubscribers(b, cfg, signal, subs, log)
	r.placeHedge(ctx, b, cfg, signal, subs, log)
}

// executeForSubscribers исполняет сигнал по каждому подписчику
func (r *Runner) executeForSubscribers(b *models.Bot, cfg *StrategyConfig, signal Signal, subs []*models.BotSubscription, log *zap.Logger) {
	botLabel := strconv.Itoa(b.ID)
	for _, sub := range subs {
		qty, err := r.executeForSubscriber(b, cfg, signal, sub)
		if err != nil {
			orderErrorsTotal.WithLabelValues(botLabel).Inc()
			log.Warn("subscriber trade failed",
				zap.Int("user_id", sub.UserID),
				zap.String("signal", string(signal)),
				zap.Error(err),
			)
			continue
		}
		if qty.IsPositive() {
			ordersTotal.WithLabelValues(botLabel, string(signal)).Inc()
		}
	}
}

func (r *Runner) executeForSubscriber(b *models.Bot, cfg *StrategyConfig, signal Signal, sub *models.BotSubscription) (decimal.Decimal, error) {
	base, quote, err := models.SplitPair(cfg.Pair)
	if err != nil {
		return decimal.Zero, err
	}

	price, err := r.oracle.LastPrice(cfg.Pair)
	if err != nil {
		return decimal.Zero, err
	}

	pct := decimal.NewFromFloat(cfg.TradePct / 100)

	var qty decimal.Decimal
	switch signal {
	case SignalBuy:
		wallet, err := r.ledger.Get(sub.UserID, quote)
		if err != nil {
			if errors.Is(err, ledger.ErrWalletNotFound) {
				return decimal.Zero, nil
			}
			return decimal.Zero, err
		}

		deployed, err := r.deployedCapital(sub.UserID, b.ID)
		if err != nil {
			return decimal.Zero, err
		}
		headroom := sub.AllocatedUSDT.Sub(deployed)
		spend := decimal.Min(wallet.Balance.Mul(pct), headroom)
		if !spend.IsPositive() {
			return decimal.Zero, nil
		}
		qty = spend.Div(price).Truncate(quantityPrecision)

	case SignalSell:
		wallet, err := r.ledger.Get(sub.UserID, base)
		if err != nil {
			if errors.Is(err, ledger.ErrWalletNotFound) {
				return decimal.Zero, nil
			}
			return decimal.Zero, err
		}
		qty = wallet.Balance.Mul(pct).Truncate(quantityPrecision)

	default:
		return decimal.Zero, nil
	}

	if !qty.IsPositive() {
		return decimal.Zero, nil
	}

	order := &models.Order{
		UserID:     sub.UserID,
		Pair:       cfg.Pair,
		Side:       string(signal),
		Quantity:   qty,
		IsBotOrder: true,
		BotID:      &b.ID,
	}
	if _, err := r.engine.PlaceAndSettle(order); err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

// deployedCapital реплеит чистый вложенный капитал пользователя в бота
// из исполненных ордеров: сумма затрат на покупки минус выручка продаж
func (r *Runner) deployedCapital(userID, botID int) (decimal.Decimal, error) {
	orders, err := r.orders.ListFilledBotOrders(userID, botID)
	if err != nil {
		return decimal.Zero, err
	}

	deployed := decimal.Zero
	for _, o := range orders {
		trade, err := r.orders.GetTradeByOrderID(o.ID)
		if err != nil {
			return decimal.Zero, err
		}
		value := trade.Price.Mul(trade.Quantity)
		if o.Side == models.OrderSideBuy {
			deployed = deployed.Add(value)
		} else {
			deployed = deployed.Sub(value)
		}
	}
	return deployed, nil
}

// placeHedge выставляет одну агрегатную заявку на внешней площадке
// на суммарный выделенный капитал подписчиков в котируемой валюте.
// Хеджируются только покупки: для продажи удерживаемое площадкой
// количество неизвестно, она закрывается отдельным процессом сверки.
func (r *Runner) placeHedge(ctx context.Context, b *models.Bot, cfg *StrategyConfig, signal Signal, subs []*models.BotSubscription, log *zap.Logger) {
	if r.hedge == nil || signal != SignalBuy {
		return
	}

	total := decimal.Zero
	for _, sub := range subs {
		total = total.Add(sub.AllocatedUSDT)
	}
	if !total.IsPositive() {
		return
	}

	symbol := models.PairSymbol(cfg.Pair)
	if err := r.hedge.PlaceQuoteMarketOrder(ctx, symbol, "BUY", total); err != nil {
		hedgeErrorsTotal.WithLabelValues(strconv.Itoa(b.ID)).Inc()
		log.Error("aggregate hedge failed",
			zap.String("symbol", symbol),
			zap.String("quote_quantity", total.String()),
			zap.Error(err),
		)
	}
}

// Liquidate продает остаток базового актива, накопленный ботом
// для пользователя. Вызывается менеджером подписок при отписке с
// ликвидацией. Возвращает количество проданного.
func (r *Runner) Liquidate(userID, botID int, pair string) (decimal.Decimal, error) {
	netQty, err := r.NetPosition(userID, botID)
	if err != nil {
		return decimal.Zero, err
	}
	if !netQty.IsPositive() {
		return decimal.Zero, nil
	}

	order := &models.Order{
		UserID:     userID,
		Pair:       pair,
		Side:       models.OrderSideSell,
		Quantity:   netQty.Truncate(quantityPrecision),
		IsBotOrder: true,
		BotID:      &botID,
	}
	if _, err := r.engine.PlaceAndSettle(order); err != nil {
		return decimal.Zero, err
	}
	return order.Quantity, nil
}

// NetPosition реплеит чистое количество базового актива, купленное
// ботом для пользователя
func (r *Runner) NetPosition(userID, botID int) (decimal.Decimal, error) {
	orders, err := r.orders.ListFilledBotOrders(userID, botID)
	if err != nil {
		return decimal.Zero, err
	}

	net := decimal.Zero
	for _, o := range orders {
		if o.Side == models.OrderSideBuy {
			net = net.Add(o.FilledQuantity)
		} else {
			net = net.Sub(o.FilledQuantity)
		}
	}
	return net, nil
}
