package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/api/handlers"
	"github.com/forlabsio/crypto-exchange/internal/api/middleware"
	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/service"
	"github.com/forlabsio/crypto-exchange/internal/settlement"
	"github.com/forlabsio/crypto-exchange/internal/subscription"
	"github.com/forlabsio/crypto-exchange/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AuthService   *service.AuthService
	WalletService *service.WalletService
	BotService    *service.BotService
	MarketService *market.Service
	Subscriptions *subscription.Manager
	Engine        *settlement.Engine
	Orders        *repository.OrderRepository
	Venue         handlers.VenueBalancer
	Hub           *websocket.Hub
	Logger        *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /auth/
//	│   ├── POST /register       - регистрация по email
//	│   ├── POST /login          - вход по email
//	│   ├── POST /wallet/nonce   - сообщение для подписи MetaMask
//	│   └── POST /wallet/verify  - вход по подписи MetaMask
//	├── /market/
//	│   ├── GET /tickers         - все тикеры
//	│   └── GET /tickers/{pair}  - тикер пары
//	├── /wallets/   GET          - балансы (auth)
//	├── /deposits/  GET, POST    - депозиты (auth)
//	├── /orders/    GET, POST    - ручная торговля (auth)
//	├── /bots/
//	│   ├── GET  /               - витрина ботов
//	│   ├── GET  /{id}           - данные бота
//	│   ├── GET  /{id}/performance - метрики
//	│   ├── GET  /{id}/stats       - личные метрики (auth)
//	│   ├── POST /{id}/subscribe   - подписка (auth)
//	│   └── POST /{id}/unsubscribe - отписка (auth)
//	├── /subscriptions/ GET      - подписки пользователя (auth)
//	└── /admin/                  - администрирование (auth + admin)
//
// /ws/stream - WebSocket для real-time тикеров
// /metrics   - Prometheus
// /health    - liveness
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (только для защищенных маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS)

	authHandler := handlers.NewAuthHandler(deps.AuthService)
	walletHandler := handlers.NewWalletHandler(deps.WalletService)
	marketHandler := handlers.NewMarketHandler(deps.MarketService)
	botHandler := handlers.NewBotHandler(deps.BotService, deps.Subscriptions)
	orderHandler := handlers.NewOrderHandler(deps.Engine, deps.Orders)
	adminHandler := handlers.NewAdminHandler(deps.BotService, deps.WalletService, deps.Subscriptions, deps.Venue)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Публичные маршруты
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/wallet/nonce", authHandler.Nonce).Methods("POST")
	api.HandleFunc("/auth/wallet/verify", authHandler.Verify).Methods("POST")

	api.HandleFunc("/market/tickers", marketHandler.GetTickers).Methods("GET")
	api.HandleFunc("/market/tickers/{pair}", marketHandler.GetTicker).Methods("GET")

	api.HandleFunc("/bots", botHandler.GetBots).Methods("GET")
	api.HandleFunc("/bots/{id}", botHandler.GetBot).Methods("GET")
	api.HandleFunc("/bots/{id}/performance", botHandler.GetPerformance).Methods("GET")

	// Защищенные маршруты
	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.Auth(deps.AuthService))

	authed.HandleFunc("/wallets", walletHandler.GetWallets).Methods("GET")
	authed.HandleFunc("/deposits", walletHandler.GetDeposits).Methods("GET")
	authed.HandleFunc("/deposits", walletHandler.SubmitDeposit).Methods("POST")

	authed.HandleFunc("/orders", orderHandler.CreateOrder).Methods("POST")
	authed.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")

	authed.HandleFunc("/bots/{id}/stats", botHandler.GetStats).Methods("GET")
	authed.HandleFunc("/bots/{id}/subscribe", botHandler.Subscribe).Methods("POST")
	authed.HandleFunc("/bots/{id}/unsubscribe", botHandler.Unsubscribe).Methods("POST")
	authed.HandleFunc("/subscriptions", botHandler.GetSubscriptions).Methods("GET")

	// Административные маршруты
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Auth(deps.AuthService))
	admin.Use(middleware.AdminOnly)

	admin.HandleFunc("/bots", adminHandler.ListBots).Methods("GET")
	admin.HandleFunc("/bots", adminHandler.CreateBot).Methods("POST")
	admin.HandleFunc("/bots/{id}", adminHandler.UpdateBot).Methods("PUT")
	admin.HandleFunc("/bots/{id}", adminHandler.EvictBot).Methods("DELETE")
	admin.HandleFunc("/bots/{id}/kill-switch", adminHandler.SetKillSwitch).Methods("POST")
	admin.HandleFunc("/bots/{id}/fees", adminHandler.GetFees).Methods("GET")
	admin.HandleFunc("/bots/{id}/fees/settle", adminHandler.SettleFees).Methods("POST")
	admin.HandleFunc("/fees/summary", adminHandler.FeeSummary).Methods("GET")
	admin.HandleFunc("/subscriptions", adminHandler.ListSubscriptions).Methods("GET")
	admin.HandleFunc("/subscriptions/{id}", adminHandler.ForceCancelSubscription).Methods("DELETE")
	admin.HandleFunc("/renewals/run", adminHandler.RunRenewals).Methods("POST")
	admin.HandleFunc("/credits", adminHandler.Credit).Methods("POST")
	admin.HandleFunc("/venue/balance", adminHandler.VenueBalance).Methods("GET")

	// WebSocket
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", websocket.ServeWS(deps.Hub, deps.Logger))
	}

	// Служебные endpoints
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return router
}
