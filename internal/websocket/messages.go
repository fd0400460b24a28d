package websocket

import (
	"time"

	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeTicker - обновление тикера пары.
	// Отправляется после каждого опроса рыночных данных.
	MessageTypeTicker MessageType = "ticker"

	// MessageTypeTrade - исполненная сделка пользователя.
	// Отправляется после settlement ордера.
	MessageTypeTrade MessageType = "trade"

	// MessageTypeSubscription - изменение статуса подписки.
	// Отправляется при подписке, отписке и отмене за неуплату.
	MessageTypeSubscription MessageType = "subscription"
)

// BaseMessage - базовая структура всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// TickerMessage - обновление тикера
type TickerMessage struct {
	BaseMessage
	Data market.Ticker `json:"data"`
}

// TradeMessage - исполненная сделка
type TradeMessage struct {
	BaseMessage
	UserID int           `json:"user_id"`
	Order  *models.Order `json:"order"`
	Trade  *models.Trade `json:"trade"`
}

// SubscriptionMessage - изменение статуса подписки
type SubscriptionMessage struct {
	BaseMessage
	UserID int    `json:"user_id"`
	BotID  int    `json:"bot_id"`
	Status string `json:"status"` // subscribed | unsubscribed | cancelled
}
