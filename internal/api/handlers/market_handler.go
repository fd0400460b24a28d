package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/forlabsio/crypto-exchange/internal/market"
)

// MarketHandler отвечает за публичные рыночные данные
//
// Endpoints:
// - GET /api/v1/market/tickers       - все тикеры
// - GET /api/v1/market/tickers/{pair} - тикер пары
type MarketHandler struct {
	marketService *market.Service
}

// NewMarketHandler создает новый MarketHandler
func NewMarketHandler(marketService *market.Service) *MarketHandler {
	return &MarketHandler{marketService: marketService}
}

// TickerResponse тикер с признаком устаревших данных
type TickerResponse struct {
	market.Ticker
	Stale bool `json:"stale"`
}

// GetTickers возвращает все известные тикеры
// GET /api/v1/market/tickers
func (h *MarketHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SuccessResponse{Data: h.marketService.Tickers()})
}

// GetTicker возвращает тикер одной пары
// GET /api/v1/market/tickers/{pair}
func (h *MarketHandler) GetTicker(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]

	ticker, stale, err := h.marketService.Ticker(pair)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrUnknownPair):
			respondError(w, http.StatusNotFound, "unknown_pair", "Pair is not tracked", "")
		case errors.Is(err, market.ErrNoMarketData):
			respondError(w, http.StatusServiceUnavailable, "no_market_data", "No market data yet", "")
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Failed to load ticker", "")
		}
		return
	}

	respondJSON(w, http.StatusOK, SuccessResponse{Data: TickerResponse{Ticker: ticker, Stale: stale}})
}
