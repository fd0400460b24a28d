package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/service"
	"github.com/forlabsio/crypto-exchange/internal/subscription"
)

// VenueBalancer - доступ к балансам внешней площадки для сверки
type VenueBalancer interface {
	AccountBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// AdminHandler отвечает за административные операции
//
// Endpoints:
// - GET    /api/v1/admin/bots                  - все боты с метриками
// - POST   /api/v1/admin/bots                  - создать бота
// - PUT    /api/v1/admin/bots/{id}             - обновить конфигурацию
// - DELETE /api/v1/admin/bots/{id}             - снять бота с витрины
// - POST   /api/v1/admin/bots/{id}/kill-switch - включить/выключить торговлю
// - GET    /api/v1/admin/bots/{id}/fees        - доход платформы по боту
// - POST   /api/v1/admin/bots/{id}/fees/settle - закрыть расчеты с операторами
// - GET    /api/v1/admin/fees/summary          - сводка дохода платформы
// - GET    /api/v1/admin/subscriptions         - активные подписки
// - DELETE /api/v1/admin/subscriptions/{id}    - принудительная отмена
// - POST   /api/v1/admin/renewals/run          - внеплановая проверка продлений
// - POST   /api/v1/admin/credits               - ручное пополнение кошелька
// - GET    /api/v1/admin/venue/balance         - баланс внешней площадки
type AdminHandler struct {
	botService    *service.BotService
	walletService *service.WalletService
	subs          *subscription.Manager
	venue         VenueBalancer
}

// NewAdminHandler создает новый AdminHandler
func NewAdminHandler(botService *service.BotService, walletService *service.WalletService, subs *subscription.Manager, venue VenueBalancer) *AdminHandler {
	return &AdminHandler{botService: botService, walletService: walletService, subs: subs, venue: venue}
}

// CreateBotRequest структура запроса на создание бота
type CreateBotRequest struct {
	Name             string              `json:"name"`
	Description      string              `json:"description"`
	StrategyType     string              `json:"strategy_type"`
	StrategyConfig   jsoniter.RawMessage `json:"strategy_config"`
	MonthlyFee       decimal.Decimal     `json:"monthly_fee"`
	MaxDrawdownLimit decimal.Decimal     `json:"max_drawdown_limit"`
}

// KillSwitchRequest структура запроса переключения kill switch
type KillSwitchRequest struct {
	On bool `json:"on"`
}

// CreditRequest структура запроса ручного пополнения
type CreditRequest struct {
	UserID int             `json:"user_id"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// ListBots возвращает всех ботов, включая выведенных с витрины,
// с числом подписчиков и метриками текущего периода
// GET /api/v1/admin/bots
func (h *AdminHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	bots, err := h.botService.AdminList()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load bots", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: bots})
}

// CreateBot добавляет бота на витрину
// POST /api/v1/admin/bots
func (h *AdminHandler) CreateBot(w http.ResponseWriter, r *http.Request) {
	var req CreateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if req.Name == "" || req.StrategyType == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "Name and strategy_type are required", "")
		return
	}

	b := &models.Bot{
		Name:             req.Name,
		Description:      req.Description,
		StrategyType:     req.StrategyType,
		StrategyConfig:   []byte(req.StrategyConfig),
		MonthlyFee:       req.MonthlyFee,
		MaxDrawdownLimit: req.MaxDrawdownLimit,
	}
	if err := h.botService.CreateBot(b); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_bot", "Bot creation failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, SuccessResponse{Data: b})
}

// UpdateBotRequest структура запроса обновления конфигурации бота
type UpdateBotRequest struct {
	StrategyConfig jsoniter.RawMessage `json:"strategy_config"`
}

// UpdateBot заменяет конфигурацию стратегии бота
// PUT /api/v1/admin/bots/{id}
func (h *AdminHandler) UpdateBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdateBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if len(req.StrategyConfig) == 0 {
		respondError(w, http.StatusBadRequest, "missing_fields", "strategy_config is required", "")
		return
	}

	if err := h.botService.UpdateBotConfig(botID, []byte(req.StrategyConfig)); err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_config", "Bot update failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "bot updated"})
}

// EvictBot снимает бота с витрины, останавливает торговлю и завершает
// все активные подписки с возвратом эскроу
// DELETE /api/v1/admin/bots/{id}
func (h *AdminHandler) EvictBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.botService.EvictBot(r.Context(), botID); err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Eviction failed", "")
		return
	}
	if err := h.subs.CancelAllForBot(botID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Bot evicted but subscription cleanup failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "bot evicted"})
}

// SetKillSwitch переключает торговлю бота
// POST /api/v1/admin/bots/{id}/kill-switch
func (h *AdminHandler) SetKillSwitch(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req KillSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if err := h.botService.SetKillSwitch(r.Context(), botID, req.On); err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Kill switch toggle failed", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "kill switch updated"})
}

// GetFees возвращает доход платформы по боту
// GET /api/v1/admin/bots/{id}/fees
func (h *AdminHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	fees, err := h.botService.FeeIncome(botID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load fee income", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: fees})
}

// SettleFees закрывает накопленные расчеты с операторами бота
// POST /api/v1/admin/bots/{id}/fees/settle
func (h *AdminHandler) SettleFees(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	n, err := h.botService.SettleFees(botID)
	if err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Fee settlement failed", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: map[string]int64{"settled": n}})
}

// RunRenewals запускает внеплановую проверку продлений подписок
// POST /api/v1/admin/renewals/run
func (h *AdminHandler) RunRenewals(w http.ResponseWriter, r *http.Request) {
	h.subs.RunRenewals(time.Now().UTC())
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "renewal check completed"})
}

// Credit пополняет кошелек пользователя вручную
// POST /api/v1/admin/credits
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if req.UserID <= 0 || req.Asset == "" || !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_fields", "user_id, asset and positive amount are required", "")
		return
	}

	wallet, err := h.walletService.AdminCredit(req.UserID, req.Asset, req.Amount)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Credit failed", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: wallet})
}

// FeeSummary возвращает сводку дохода платформы: начисления текущего
// периода и остаток нерассчитанных записей
// GET /api/v1/admin/fees/summary
func (h *AdminHandler) FeeSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.botService.PlatformFeeSummary()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load fee summary", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: summary})
}

// ListSubscriptions возвращает все активные подписки платформы
// GET /api/v1/admin/subscriptions
func (h *AdminHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListActive()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load subscriptions", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: subs})
}

// ForceCancelSubscription принудительно завершает подписку по ID.
// Возвращается только эскроу, позиция пользователя не ликвидируется.
// DELETE /api/v1/admin/subscriptions/{id}
func (h *AdminHandler) ForceCancelSubscription(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.subs.ForceCancelByID(subID); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "subscription_not_found", "Active subscription not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Force cancel failed", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "subscription cancelled"})
}

// VenueBalance возвращает свободный баланс актива на внешней площадке
// GET /api/v1/admin/venue/balance?asset=USDT
func (h *AdminHandler) VenueBalance(w http.ResponseWriter, r *http.Request) {
	if h.venue == nil {
		respondError(w, http.StatusServiceUnavailable, "venue_unavailable", "Venue client is not configured", "")
		return
	}

	asset := r.URL.Query().Get("asset")
	if asset == "" {
		asset = models.QuoteAsset
	}

	balance, err := h.venue.AccountBalance(r.Context(), asset)
	if err != nil {
		respondError(w, http.StatusBadGateway, "venue_error", "Failed to fetch venue balance", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: map[string]string{
		"asset":   asset,
		"balance": balance.String(),
	}})
}
