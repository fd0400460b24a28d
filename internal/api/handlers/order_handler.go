package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/api/middleware"
	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/settlement"
	"github.com/forlabsio/crypto-exchange/pkg/utils"
)

// Лимит выборки истории ордеров по умолчанию
const defaultOrdersLimit = 100

// OrderHandler отвечает за ручную торговлю
//
// Endpoints:
// - POST /api/v1/orders - рыночный ордер
// - GET  /api/v1/orders - история ордеров пользователя
type OrderHandler struct {
	engine *settlement.Engine
	orders *repository.OrderRepository
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(engine *settlement.Engine, orders *repository.OrderRepository) *OrderHandler {
	return &OrderHandler{engine: engine, orders: orders}
}

// CreateOrderRequest структура запроса на рыночный ордер
type CreateOrderRequest struct {
	Pair     string          `json:"pair"`     // BTC_USDT
	Side     string          `json:"side"`     // buy | sell
	Quantity decimal.Decimal `json:"quantity"` // в базовом активе
}

// OrderResponse ордер вместе со сделкой
type OrderResponse struct {
	Order *models.Order `json:"order"`
	Trade *models.Trade `json:"trade,omitempty"`
}

// CreateOrder исполняет рыночный ордер по цене оракула
// POST /api/v1/orders
//
// Response:
// - 201 Created: ордер исполнен
// - 402 Payment Required: недостаточно средств
// - 503 Service Unavailable: нет рыночной цены, ордер остался открыт
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}
	if !utils.IsValidPair(req.Pair) {
		respondError(w, http.StatusBadRequest, "invalid_pair", "Invalid pair format", "")
		return
	}
	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		respondError(w, http.StatusBadRequest, "invalid_side", "Side must be buy or sell", "")
		return
	}
	if !req.Quantity.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "Quantity must be positive", "")
		return
	}

	order := &models.Order{
		UserID:   userID,
		Pair:     req.Pair,
		Side:     req.Side,
		Quantity: req.Quantity,
	}
	trade, err := h.engine.PlaceAndSettle(order)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrNoMarketData):
			respondError(w, http.StatusServiceUnavailable, "no_market_data", "No market price, order left open", "")
		case ledger.IsInsufficientFunds(err):
			respondError(w, http.StatusPaymentRequired, "insufficient_funds", "Insufficient funds", err.Error())
		case errors.Is(err, ledger.ErrWalletNotFound):
			respondError(w, http.StatusPaymentRequired, "insufficient_funds", "No balance for pair asset", "")
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Order failed", "")
		}
		return
	}

	respondJSON(w, http.StatusCreated, SuccessResponse{Data: OrderResponse{Order: order, Trade: trade}})
}

// GetOrders возвращает историю ордеров пользователя
// GET /api/v1/orders
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}

	orders, err := h.orders.ListByUser(userID, defaultOrdersLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load orders", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: orders})
}
