package models

import "time"

// User представляет учетную запись пользователя.
//
// Поддерживаются два метода аутентификации:
// - email + пароль (PasswordHash, bcrypt)
// - MetaMask кошелек (WalletAddress + одноразовый Nonce для подписи)
//
// У одного пользователя может быть заполнен только один из методов
// или оба (привязка кошелька к email-аккаунту).
type User struct {
	ID            int        `json:"id" db:"id"`
	Email         *string    `json:"email,omitempty" db:"email"`
	PasswordHash  *string    `json:"-" db:"password_hash"`
	WalletAddress *string    `json:"wallet_address,omitempty" db:"wallet_address"`
	Nonce         *string    `json:"-" db:"nonce"` // одноразовый nonce для MetaMask входа
	Role          string     `json:"role" db:"role"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Роли пользователей
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IsAdmin проверяет, является ли пользователь администратором
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
