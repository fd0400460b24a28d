package service

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/pkg/crypto"
	"github.com/forlabsio/crypto-exchange/pkg/utils"
)

// Типизированные ошибки аутентификации
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSignature   = errors.New("signature does not match wallet address")
	ErrInvalidAddress     = errors.New("invalid wallet address")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Стартовый демо-баланс нового пользователя
var welcomeBalance = decimal.NewFromInt(10000)

// Claims - полезная нагрузка JWT
type Claims struct {
	UserID int    `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService - регистрация и вход.
//
// Назначение:
// Два способа входа: email+пароль (bcrypt) и MetaMask (подпись
// одноразового nonce ключом кошелька). Оба выдают JWT HS256.
// Новому пользователю при создании зачисляется стартовый демо-баланс
// USDT.
type AuthService struct {
	users     *repository.UserRepository
	ledger    *ledger.Ledger
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *zap.Logger
}

// NewAuthService создает сервис аутентификации
func NewAuthService(users *repository.UserRepository, lg *ledger.Ledger, jwtSecret string, tokenTTL time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		ledger:    lg,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

// Register создает пользователя по email и паролю
func (s *AuthService) Register(email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !utils.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        &email,
		PasswordHash: &hash,
		Role:         models.RoleUser,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	s.seedWelcomeBalance(user.ID)

	s.log.Info("user registered", zap.Int("user_id", user.ID))
	return user, nil
}

// Login проверяет пароль и выдает JWT
func (s *AuthService) Login(email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if user.PasswordHash == nil || !crypto.CheckPasswordMatch(password, *user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Nonce возвращает одноразовое сообщение для подписи MetaMask.
// Пользователь с этим адресом создается при первом обращении.
func (s *AuthService) Nonce(address string) (string, error) {
	if !utils.IsValidEthAddress(address) {
		return "", ErrInvalidAddress
	}
	address = utils.NormalizeEthAddress(address)

	nonce := uuid.NewString()

	user, err := s.users.GetByWalletAddress(address)
	switch {
	case err == nil:
		if err := s.users.UpdateNonce(user.ID, nonce); err != nil {
			return "", err
		}
	case errors.Is(err, repository.ErrUserNotFound):
		user = &models.User{
			WalletAddress: &address,
			Nonce:         &nonce,
			Role:          models.RoleUser,
		}
		if err := s.users.Create(user); err != nil {
			return "", err
		}
		s.seedWelcomeBalance(user.ID)
		s.log.Info("wallet user registered", zap.Int("user_id", user.ID))
	default:
		return "", err
	}

	return signInMessage(nonce), nil
}

// VerifySignature проверяет подпись nonce и выдает JWT.
// Использованный nonce немедленно заменяется новым.
func (s *AuthService) VerifySignature(address, signature string) (string, *models.User, error) {
	if !utils.IsValidEthAddress(address) {
		return "", nil, ErrInvalidAddress
	}
	address = utils.NormalizeEthAddress(address)

	user, err := s.users.GetByWalletAddress(address)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidSignature
		}
		return "", nil, err
	}
	if user.Nonce == nil {
		return "", nil, ErrInvalidSignature
	}

	recovered, err := recoverAddress(signInMessage(*user.Nonce), signature)
	if err != nil || !strings.EqualFold(recovered, address) {
		return "", nil, ErrInvalidSignature
	}

	// Ротация nonce защищает от повторного использования подписи
	if err := s.users.UpdateNonce(user.ID, uuid.NewString()); err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ParseToken проверяет JWT и возвращает полезную нагрузку
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) issueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// seedWelcomeBalance зачисляет стартовый демо-баланс. Сбой зачисления
// не отменяет регистрацию: баланс можно довыдать вручную.
func (s *AuthService) seedWelcomeBalance(userID int) {
	if _, err := s.ledger.Credit(userID, models.QuoteAsset, welcomeBalance); err != nil {
		s.log.Error("seed welcome balance failed",
			zap.Int("user_id", userID), zap.Error(err))
	}
}

// signInMessage - сообщение, подписываемое кошельком при входе
func signInMessage(nonce string) string {
	return "ForLabsEX 로그인 확인\nNonce: " + nonce
}

// recoverAddress восстанавливает адрес из подписи personal_sign
func recoverAddress(message, signature string) (string, error) {
	sig, err := hexDecodeSignature(signature)
	if err != nil {
		return "", err
	}
	// MetaMask отдает V как 27/28, go-ethereum ожидает 0/1
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := ethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ethcrypto.PubkeyToAddress(*pubKey).Hex()), nil
}

func hexDecodeSignature(signature string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}
