package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/internal/service"
)

// Ключи данных аутентификации в context запроса
const (
	UserIDKey contextKey = "user_id"
	RoleKey   contextKey = "role"
)

// TokenParser проверяет JWT и возвращает полезную нагрузку
type TokenParser interface {
	ParseToken(token string) (*service.Claims, error)
}

// Auth - middleware аутентификации по JWT.
//
// Ожидает заголовок Authorization: Bearer {token}. Идентификатор
// пользователя и роль кладутся в context запроса.
func Auth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := parser.ParseToken(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly - middleware авторизации администратора.
// Применяется после Auth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(RoleKey).(string)
		if role != models.RoleAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserID извлекает идентификатор пользователя из context запроса
func UserID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UserIDKey).(int)
	return id, ok
}
