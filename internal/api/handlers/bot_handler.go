package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/api/middleware"
	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/service"
	"github.com/forlabsio/crypto-exchange/internal/subscription"
)

// BotHandler отвечает за витрину ботов и подписки
//
// Endpoints:
// - GET    /api/v1/bots                    - список активных ботов
// - GET    /api/v1/bots/{id}               - данные бота
// - GET    /api/v1/bots/{id}/performance   - метрики бота по периодам
// - GET    /api/v1/bots/{id}/stats         - личные метрики подписчика
// - POST   /api/v1/bots/{id}/subscribe     - подписаться
// - POST   /api/v1/bots/{id}/unsubscribe   - отписаться
// - GET    /api/v1/subscriptions           - активные подписки пользователя
type BotHandler struct {
	botService *service.BotService
	subs       *subscription.Manager
}

// NewBotHandler создает новый BotHandler
func NewBotHandler(botService *service.BotService, subs *subscription.Manager) *BotHandler {
	return &BotHandler{botService: botService, subs: subs}
}

// SubscribeRequest структура запроса подписки
type SubscribeRequest struct {
	AllocatedUSDT decimal.Decimal `json:"allocated_usdt"`
}

// UnsubscribeRequest структура запроса отписки
type UnsubscribeRequest struct {
	Liquidate bool `json:"liquidate"`
}

// GetBots возвращает активных ботов
// GET /api/v1/bots
func (h *BotHandler) GetBots(w http.ResponseWriter, r *http.Request) {
	bots, err := h.botService.ListActive()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load bots", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: bots})
}

// GetBot возвращает бота по ID
// GET /api/v1/bots/{id}
func (h *BotHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	b, err := h.botService.Get(botID)
	if err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load bot", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: b})
}

// GetPerformance возвращает метрики бота
// GET /api/v1/bots/{id}/performance
func (h *BotHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	perfs, err := h.botService.Performance(botID)
	if err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load performance", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: perfs})
}

// GetStats возвращает личные метрики пользователя по боту, посчитанные
// реплеем его исполненных ордеров
// GET /api/v1/bots/{id}/stats
func (h *BotHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	report, err := h.botService.SubscriberStats(userID, botID)
	if err != nil {
		if errors.Is(err, repository.ErrBotNotFound) {
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to compute stats", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: report})
}

// Subscribe оформляет подписку на бота
// POST /api/v1/bots/{id}/subscribe
//
// Response:
// - 201 Created: подписка оформлена
// - 402 Payment Required: недостаточно средств (с разбивкой)
// - 409 Conflict: подписка уже активна
func (h *BotHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	sub, err := h.subs.Subscribe(userID, botID, req.AllocatedUSDT)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBotNotFound):
			respondError(w, http.StatusNotFound, "bot_not_found", "Bot not found", "")
		case errors.Is(err, subscription.ErrBotNotAvailable):
			respondError(w, http.StatusConflict, "bot_unavailable", "Bot is not available for subscription", "")
		case errors.Is(err, subscription.ErrNonPositiveAllocated):
			respondError(w, http.StatusBadRequest, "invalid_amount", "Allocated amount must be positive", "")
		case errors.Is(err, repository.ErrAlreadySubscribed):
			respondError(w, http.StatusConflict, "already_subscribed", "Subscription already active", "")
		case ledger.IsInsufficientFunds(err):
			respondError(w, http.StatusPaymentRequired, "insufficient_funds", "Insufficient funds", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Subscription failed", "")
		}
		return
	}

	respondJSON(w, http.StatusCreated, SuccessResponse{Data: sub})
}

// Unsubscribe завершает подписку
// POST /api/v1/bots/{id}/unsubscribe
func (h *BotHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}
	botID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if err := h.subs.Unsubscribe(userID, botID, req.Liquidate); err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "not_subscribed", "No active subscription", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Unsubscribe failed", "")
		return
	}

	respondJSON(w, http.StatusOK, SuccessResponse{Message: "unsubscribed"})
}

// GetSubscriptions возвращает активные подписки пользователя
// GET /api/v1/subscriptions
func (h *BotHandler) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}

	subs, err := h.botService.UserSubscriptions(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load subscriptions", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: subs})
}

// pathID извлекает числовой {id} из пути
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid id in path", "")
		return 0, false
	}
	return id, true
}
