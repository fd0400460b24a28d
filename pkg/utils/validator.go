package utils

import (
	"regexp"
	"strings"
)

// validator.go - валидация входных данных API
//
// Назначение:
// Проверка форматов до обращения к БД или внешним сервисам.
// Все функции чистые и потокобезопасные.

var (
	pairRegex    = regexp.MustCompile(`^[A-Z0-9]{2,10}_[A-Z0-9]{2,10}$`)
	txHashRegex  = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	emailRegex   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// IsValidPair проверяет формат торговой пары (BTC_USDT)
func IsValidPair(pair string) bool {
	return pairRegex.MatchString(pair)
}

// IsValidTxHash проверяет формат хеша транзакции EVM-сети
// (0x + 64 hex символа в нижнем регистре, всего 66 символов)
func IsValidTxHash(hash string) bool {
	return txHashRegex.MatchString(hash)
}

// NormalizeTxHash приводит хеш к каноничному виду (trim + lowercase)
func NormalizeTxHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// IsValidEthAddress проверяет формат EVM-адреса (0x + 40 hex символов)
func IsValidEthAddress(addr string) bool {
	return addressRegex.MatchString(addr)
}

// NormalizeEthAddress приводит адрес к каноничному виду
func NormalizeEthAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsValidEmail выполняет базовую проверку формата email
func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
