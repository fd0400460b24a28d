package handlers

import (
	"errors"
	"net/http"

	"github.com/forlabsio/crypto-exchange/internal/api/middleware"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/service"
)

// WalletHandler отвечает за балансы и депозиты
//
// Endpoints:
// - GET  /api/v1/wallets          - балансы пользователя
// - GET  /api/v1/deposits         - история депозитов
// - POST /api/v1/deposits         - заявить on-chain депозит
type WalletHandler struct {
	walletService *service.WalletService
}

// NewWalletHandler создает новый WalletHandler
func NewWalletHandler(walletService *service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// DepositRequest структура заявки на депозит
type DepositRequest struct {
	TxHash string `json:"tx_hash"`
}

// GetWallets возвращает балансы пользователя с оценкой в USDT
// GET /api/v1/wallets
func (h *WalletHandler) GetWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}

	sheet, err := h.walletService.ValuedBalances(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load balances", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: sheet})
}

// GetDeposits возвращает историю депозитов
// GET /api/v1/deposits
func (h *WalletHandler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}

	deposits, err := h.walletService.Deposits(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load deposits", "")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: deposits})
}

// SubmitDeposit верифицирует on-chain депозит и зачисляет средства
// POST /api/v1/deposits
//
// Response:
// - 201 Created: депозит подтвержден и зачислен
// - 400 Bad Request: невалидный tx hash
// - 409 Conflict: хеш уже обработан
// - 422 Unprocessable Entity: транзакция не прошла верификацию
func (h *WalletHandler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Missing user", "")
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	deposit, err := h.walletService.SubmitDeposit(r.Context(), userID, req.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidTxHash):
			respondError(w, http.StatusBadRequest, "invalid_tx_hash", "Invalid transaction hash", "")
		case errors.Is(err, repository.ErrDepositAlreadySeen):
			respondError(w, http.StatusConflict, "duplicate_deposit", "Transaction already processed", "")
		case errors.Is(err, service.ErrDepositNotVerified):
			respondError(w, http.StatusUnprocessableEntity, "not_verified", "Deposit could not be verified on chain", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Deposit processing failed", "")
		}
		return
	}

	respondJSON(w, http.StatusCreated, SuccessResponse{Data: deposit})
}
