package repository

import "errors"

// Типизированные ошибки слоя репозиториев
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrOrderNotFound        = errors.New("order not found")
	ErrBotNotFound          = errors.New("bot not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPerformanceNotFound  = errors.New("no performance snapshot for period")
	ErrAlreadySubscribed    = errors.New("active subscription already exists")
	ErrDepositNotFound      = errors.New("deposit transaction not found")
	ErrDepositAlreadySeen   = errors.New("deposit tx hash already recorded")
)
