package handlers

import (
	"errors"
	"net/http"

	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/service"
)

// AuthHandler отвечает за регистрацию и вход
//
// Endpoints:
// - POST /api/v1/auth/register      - регистрация по email и паролю
// - POST /api/v1/auth/login         - вход по email и паролю
// - POST /api/v1/auth/wallet/nonce  - получить сообщение для подписи
// - POST /api/v1/auth/wallet/verify - вход по подписи MetaMask
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler создает новый AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterRequest структура запроса регистрации
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest структура запроса входа
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NonceRequest структура запроса nonce для MetaMask
type NonceRequest struct {
	Address string `json:"address"`
}

// VerifyRequest структура запроса проверки подписи
type VerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// TokenResponse структура ответа с JWT
type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse публичные данные пользователя
type UserResponse struct {
	ID            int     `json:"id"`
	Email         *string `json:"email,omitempty"`
	WalletAddress *string `json:"wallet_address,omitempty"`
	Role          string  `json:"role"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		WalletAddress: u.WalletAddress,
		Role:          u.Role,
	}
}

// Register регистрирует пользователя
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	user, err := h.authService.Register(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "user_exists", "User already exists", "")
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid_email", "Invalid email", "")
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Registration failed", "")
		}
		return
	}

	respondJSON(w, http.StatusCreated, SuccessResponse{Data: toUserResponse(user)})
}

// Login выдает JWT по email и паролю
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	token, user, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Login failed", "")
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{Token: token, User: toUserResponse(user)})
}

// Nonce возвращает одноразовое сообщение для подписи кошельком
// POST /api/v1/auth/wallet/nonce
func (h *AuthHandler) Nonce(w http.ResponseWriter, r *http.Request) {
	var req NonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	message, err := h.authService.Nonce(req.Address)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAddress) {
			respondError(w, http.StatusBadRequest, "invalid_address", "Invalid wallet address", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Nonce generation failed", "")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

// Verify проверяет подпись и выдает JWT
// POST /api/v1/auth/wallet/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	token, user, err := h.authService.VerifySignature(req.Address, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAddress):
			respondError(w, http.StatusBadRequest, "invalid_address", "Invalid wallet address", "")
		case errors.Is(err, service.ErrInvalidSignature):
			respondError(w, http.StatusUnauthorized, "invalid_signature", "Signature verification failed", "")
		default:
			respondError(w, http.StatusInternalServerError, "internal", "Verification failed", "")
		}
		return
	}

	respondJSON(w, http.StatusOK, TokenResponse{Token: token, User: toUserResponse(user)})
}
