package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/forlabsio/crypto-exchange/internal/models"
)

// UserRepository - доступ к таблице users
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository создает новый UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create сохраняет нового пользователя и возвращает его ID
func (r *UserRepository) Create(user *models.User) error {
	err := r.db.QueryRow(
		`INSERT INTO users (email, password_hash, wallet_address, nonce, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		user.Email, user.PasswordHash, user.WalletAddress, user.Nonce, user.Role,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

// GetByID возвращает пользователя по ID
func (r *UserRepository) GetByID(id int) (*models.User, error) {
	return r.scan(r.db.QueryRow(
		`SELECT id, email, password_hash, wallet_address, nonce, role, created_at
		 FROM users WHERE id = $1`, id))
}

// GetByEmail возвращает пользователя по email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.scan(r.db.QueryRow(
		`SELECT id, email, password_hash, wallet_address, nonce, role, created_at
		 FROM users WHERE email = $1`, email))
}

// GetByWalletAddress возвращает пользователя по адресу MetaMask.
// Адреса хранятся в нижнем регистре.
func (r *UserRepository) GetByWalletAddress(addr string) (*models.User, error) {
	return r.scan(r.db.QueryRow(
		`SELECT id, email, password_hash, wallet_address, nonce, role, created_at
		 FROM users WHERE wallet_address = $1`, addr))
}

// UpdateNonce обновляет nonce для подписи MetaMask
func (r *UserRepository) UpdateNonce(id int, nonce string) error {
	res, err := r.db.Exec(`UPDATE users SET nonce = $1 WHERE id = $2`, nonce, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrUserNotFound)
}

func (r *UserRepository) scan(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.WalletAddress, &u.Nonce, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// checkAffected возвращает notFound если UPDATE не затронул ни одной строки
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
