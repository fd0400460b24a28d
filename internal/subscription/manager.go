package subscription

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/bot"
	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
)

// Типизированные ошибки жизненного цикла подписок
var (
	ErrBotNotAvailable      = errors.New("bot is not available for subscription")
	ErrNonPositiveAllocated = errors.New("allocated amount must be positive")
)

// Liquidator продает остаток позиции бота для пользователя.
// Реализуется торговым циклом.
type Liquidator interface {
	Liquidate(userID, botID int, pair string) (decimal.Decimal, error)
}

// Manager - жизненный цикл подписок на ботов.
//
// Назначение:
// Subscribe, Unsubscribe и периодическая проверка продлений. Все
// денежные эффекты каждого перехода фиксируются одной транзакцией:
// частично списанная комиссия или наполовину разблокированный эскроу
// невозможны.
type Manager struct {
	db         *sql.DB
	ledger     *ledger.Ledger
	bots       *repository.BotRepository
	subs       *repository.SubscriptionRepository
	fees       *repository.FeeRepository
	liquidator Liquidator
	log        *zap.Logger
	notify     func(userID, botID int, status string)
}

// Статусы переходов подписки для уведомлений
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
	StatusCancelled    = "cancelled"
)

// NewManager создает менеджер подписок
func NewManager(
	db *sql.DB,
	lg *ledger.Ledger,
	bots *repository.BotRepository,
	subs *repository.SubscriptionRepository,
	fees *repository.FeeRepository,
	liquidator Liquidator,
	log *zap.Logger,
) *Manager {
	return &Manager{
		db:         db,
		ledger:     lg,
		bots:       bots,
		subs:       subs,
		fees:       fees,
		liquidator: liquidator,
		log:        log,
	}
}

// OnStatusChange регистрирует callback, вызываемый после каждого
// зафиксированного перехода подписки (subscribed, unsubscribed,
// cancelled за неуплату).
func (m *Manager) OnStatusChange(fn func(userID, botID int, status string)) {
	m.notify = fn
}

func (m *Manager) notifyStatus(userID, botID int, status string) {
	if m.notify != nil {
		m.notify(userID, botID, status)
	}
}

// Subscribe оформляет подписку пользователя на бота.
//
// Одной транзакцией: списывается месячная комиссия, allocated
// блокируется в эскроу, создаются запись подписки и запись дохода
// платформы. Требуемый свободный баланс равен fee + allocated;
// при нехватке возвращается InsufficientFundsError с разбивкой.
func (m *Manager) Subscribe(userID, botID int, allocated decimal.Decimal) (*models.BotSubscription, error) {
	if !allocated.IsPositive() {
		return nil, ErrNonPositiveAllocated
	}

	b, err := m.bots.GetByID(botID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BotStatusActive {
		return nil, ErrBotNotAvailable
	}

	if _, err := m.subs.GetActive(userID, botID); err == nil {
		return nil, repository.ErrAlreadySubscribed
	} else if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, err
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet, err := m.ledger.LockRow(tx, userID, models.QuoteAsset)
	if err != nil {
		return nil, err
	}

	// Повторная проверка под блокировкой строки кошелька: конкурентный
	// Subscribe мог создать подписку после внешней проверки
	if _, err := m.subs.GetActiveTx(tx, userID, botID); err == nil {
		return nil, repository.ErrAlreadySubscribed
	} else if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, err
	}

	required := b.MonthlyFee.Add(allocated)
	if wallet.Balance.LessThan(required) {
		return nil, &ledger.InsufficientFundsError{
			Asset:      models.QuoteAsset,
			Required:   required,
			Available:  wallet.Balance,
			Fee:        b.MonthlyFee,
			Investment: allocated,
		}
	}

	if b.MonthlyFee.IsPositive() {
		if err := m.ledger.DebitTx(tx, wallet, b.MonthlyFee); err != nil {
			return nil, err
		}
	}
	if err := m.ledger.LockFundsTx(tx, wallet, allocated); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &models.BotSubscription{
		UserID:        userID,
		BotID:         botID,
		AllocatedUSDT: allocated,
		FeePaidUSDT:   b.MonthlyFee,
		IsActive:      true,
		NextRenewalAt: now.Add(models.RenewalPeriod),
		StartedAt:     now,
	}
	if err := m.subs.CreateTx(tx, sub); err != nil {
		return nil, err
	}

	if b.MonthlyFee.IsPositive() {
		fee := &models.FeeIncome{
			UserID:         userID,
			BotID:          botID,
			SubscriptionID: sub.ID,
			AmountUSDT:     b.MonthlyFee,
			Period:         now.Format("2006-01"),
			ChargedAt:      now,
		}
		if err := m.fees.CreateTx(tx, fee); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	m.log.Info("subscribed",
		zap.Int("user_id", userID),
		zap.Int("bot_id", botID),
		zap.String("allocated", allocated.String()),
		zap.String("fee", b.MonthlyFee.String()),
	)
	m.notifyStatus(userID, botID, StatusSubscribed)
	return sub, nil
}

// Unsubscribe завершает подписку.
//
// При liquidate=true остаток позиции бота сначала продается по рынку
// (собственной транзакцией settlement), затем отдельной транзакцией
// разблокируется ровно allocated и подписка деактивируется. Возврат
// всегда равен allocated: торговый результат уже отражен в свободном
// балансе сделками.
func (m *Manager) Unsubscribe(userID, botID int, liquidate bool) error {
	sub, err := m.subs.GetActive(userID, botID)
	if err != nil {
		return err
	}

	if liquidate && m.liquidator != nil {
		b, err := m.bots.GetByID(botID)
		if err != nil {
			return err
		}
		cfg, err := bot.ParseStrategyConfig(b.StrategyConfig)
		if err != nil {
			return err
		}
		sold, err := m.liquidator.Liquidate(userID, botID, cfg.Pair)
		if err != nil {
			return err
		}
		if sold.IsPositive() {
			m.log.Info("position liquidated on unsubscribe",
				zap.Int("user_id", userID),
				zap.Int("bot_id", botID),
				zap.String("quantity", sold.String()),
			)
		}
	}

	if err := m.release(sub, time.Now().UTC()); err != nil {
		return err
	}
	m.notifyStatus(userID, botID, StatusUnsubscribed)
	return nil
}

// release разблокирует эскроу и деактивирует подписку одной транзакцией
func (m *Manager) release(sub *models.BotSubscription, now time.Time) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	wallet, err := m.ledger.LockRow(tx, sub.UserID, models.QuoteAsset)
	if err != nil {
		return err
	}
	if sub.AllocatedUSDT.IsPositive() {
		if err := m.ledger.UnlockTx(tx, wallet, sub.AllocatedUSDT); err != nil {
			return err
		}
	}
	if err := m.subs.DeactivateTx(tx, sub.ID, now); err != nil {
		return err
	}
	return tx.Commit()
}

// ListActive возвращает все активные подписки платформы
func (m *Manager) ListActive() ([]*models.BotSubscription, error) {
	return m.subs.ListAllActive()
}

// RunRenewals обрабатывает все подписки с наступившим сроком продления.
// Каждая подписка продлевается или отменяется собственной транзакцией:
// сбой одной не блокирует остальные.
func (m *Manager) RunRenewals(now time.Time) {
	due, err := m.subs.ListDueForRenewal(now)
	if err != nil {
		m.log.Error("list due renewals failed", zap.Error(err))
		return
	}

	for _, sub := range due {
		if err := m.renewOne(sub, now); err != nil {
			m.log.Error("renewal failed",
				zap.Int("subscription_id", sub.ID),
				zap.Int("user_id", sub.UserID),
				zap.Int("bot_id", sub.BotID),
				zap.Error(err),
			)
		}
	}
}

// renewOne продлевает одну подписку.
//
// Сценарии:
//   - комиссия нулевая: срок сдвигается бесплатно
//   - средств хватает: списание комиссии, запись дохода, сдвиг срока
//   - средств не хватает: подписка отменяется, эскроу возвращается
//     целиком, запись дохода не создается
func (m *Manager) renewOne(sub *models.BotSubscription, now time.Time) error {
	b, err := m.bots.GetByID(sub.BotID)
	if err != nil {
		return err
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Повторное чтение с блокировкой: подписка могла завершиться
	// между выборкой и обработкой
	locked, err := m.subs.GetActiveTx(tx, sub.UserID, sub.BotID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil
		}
		return err
	}

	nextAt := now.Add(models.RenewalPeriod)

	if !b.MonthlyFee.IsPositive() {
		if err := m.subs.AdvanceRenewalTx(tx, locked.ID, nextAt, decimal.Zero); err != nil {
			return err
		}
		return tx.Commit()
	}

	wallet, err := m.ledger.LockRow(tx, locked.UserID, models.QuoteAsset)
	if err != nil {
		return err
	}

	if wallet.Balance.LessThan(b.MonthlyFee) {
		// Неуплата: эскроу возвращается целиком, дохода нет
		if locked.AllocatedUSDT.IsPositive() {
			if err := m.ledger.UnlockTx(tx, wallet, locked.AllocatedUSDT); err != nil {
				return err
			}
		}
		if err := m.subs.DeactivateTx(tx, locked.ID, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		m.log.Info("subscription cancelled on failed renewal",
			zap.Int("subscription_id", locked.ID),
			zap.Int("user_id", locked.UserID),
			zap.Int("bot_id", locked.BotID),
		)
		m.notifyStatus(locked.UserID, locked.BotID, StatusCancelled)
		return nil
	}

	if err := m.ledger.DebitTx(tx, wallet, b.MonthlyFee); err != nil {
		return err
	}
	fee := &models.FeeIncome{
		UserID:         locked.UserID,
		BotID:          locked.BotID,
		SubscriptionID: locked.ID,
		AmountUSDT:     b.MonthlyFee,
		Period:         now.Format("2006-01"),
		ChargedAt:      now,
	}
	if err := m.fees.CreateTx(tx, fee); err != nil {
		return err
	}
	if err := m.subs.AdvanceRenewalTx(tx, locked.ID, nextAt, b.MonthlyFee); err != nil {
		return err
	}
	return tx.Commit()
}

// ForceCancel принудительно завершает подписку (администратор или
// вывод бота с витрины). Возвращается только эскроу; позиция не
// ликвидируется, накопленная база остается на балансе пользователя.
func (m *Manager) ForceCancel(userID, botID int) error {
	sub, err := m.subs.GetActive(userID, botID)
	if err != nil {
		return err
	}
	return m.forceCancel(sub)
}

// ForceCancelByID завершает подписку по ее идентификатору.
// Завершенная подписка считается отсутствующей.
func (m *Manager) ForceCancelByID(subID int) error {
	sub, err := m.subs.GetByID(subID)
	if err != nil {
		return err
	}
	if !sub.IsActive {
		return repository.ErrSubscriptionNotFound
	}
	return m.forceCancel(sub)
}

func (m *Manager) forceCancel(sub *models.BotSubscription) error {
	if err := m.release(sub, time.Now().UTC()); err != nil {
		return err
	}
	m.log.Info("subscription force-cancelled",
		zap.Int("subscription_id", sub.ID),
		zap.Int("user_id", sub.UserID),
		zap.Int("bot_id", sub.BotID),
		zap.String("allocated", sub.AllocatedUSDT.String()),
	)
	m.notifyStatus(sub.UserID, sub.BotID, StatusCancelled)
	return nil
}

// CancelAllForBot завершает все активные подписки бота при его снятии
// с витрины. Каждая подписка обрабатывается изолированно: сбой одной
// логируется и не блокирует возврат средств остальным.
func (m *Manager) CancelAllForBot(botID int) error {
	subs, err := m.subs.ListActiveByBot(botID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := m.ForceCancel(sub.UserID, botID); err != nil {
			m.log.Error("force cancel on eviction failed",
				zap.Int("user_id", sub.UserID),
				zap.Int("bot_id", botID),
				zap.Error(err),
			)
		}
	}
	return nil
}
