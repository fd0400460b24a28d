package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/forlabsio/crypto-exchange/internal/api"
	"github.com/forlabsio/crypto-exchange/internal/bot"
	"github.com/forlabsio/crypto-exchange/internal/chain"
	"github.com/forlabsio/crypto-exchange/internal/config"
	"github.com/forlabsio/crypto-exchange/internal/exchange"
	"github.com/forlabsio/crypto-exchange/internal/ledger"
	"github.com/forlabsio/crypto-exchange/internal/market"
	"github.com/forlabsio/crypto-exchange/internal/repository"
	"github.com/forlabsio/crypto-exchange/internal/scheduler"
	"github.com/forlabsio/crypto-exchange/internal/service"
	"github.com/forlabsio/crypto-exchange/internal/settlement"
	"github.com/forlabsio/crypto-exchange/internal/stats"
	"github.com/forlabsio/crypto-exchange/internal/subscription"
	"github.com/forlabsio/crypto-exchange/internal/websocket"
	"github.com/forlabsio/crypto-exchange/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	// Redis: runtime-состояние ботов и зеркало тикеров
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var state bot.StateStore
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unavailable, bot state kept in memory", zap.Error(err))
		rdb = nil
		state = bot.NewMemoryStateStore()
	} else {
		state = bot.NewRedisStateStore(rdb)
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Репозитории
	userRepo := repository.NewUserRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	botRepo := repository.NewBotRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	depositRepo := repository.NewDepositRepository(db)

	walletLedger := ledger.New(db, logger)

	// Рыночные данные
	coingecko := market.NewCoinGeckoClient(10 * time.Second)
	marketService := market.NewService(
		cfg.Market.Pairs,
		cfg.Market.PollInterval,
		cfg.Market.CacheTTL,
		coingecko,
		rdb,
		logger,
	)

	// Внутреннее исполнение ордеров
	engine := settlement.NewEngine(db, walletLedger, orderRepo, marketService.Cache(), logger)

	// Внешняя площадка для агрегатного хеджа
	var hedge bot.HedgeExecutor
	binanceClient, err := exchange.NewBinanceClient(
		cfg.Binance.BaseURL,
		cfg.Binance.APIKey,
		cfg.Binance.APISecretEncrypted,
		cfg.Security.EncryptionKey,
		cfg.Binance.LiveTrading,
		cfg.Binance.RequestTimeout,
		logger,
	)
	if err != nil {
		logger.Fatal("binance client init failed", zap.Error(err))
	}
	hedge = binanceClient

	// Торговый цикл ботов
	runner := bot.NewRunner(
		botRepo, subRepo, orderRepo,
		walletLedger, engine, marketService.Cache(),
		state, hedge, cfg.Bot.RunInterval, logger,
	)

	// Жизненный цикл подписок
	subManager := subscription.NewManager(db, walletLedger, botRepo, subRepo, feeRepo, runner, logger)

	// Верификация on-chain депозитов
	var verifier service.DepositVerifier
	if cfg.Chain.RPCURL != "" {
		polygonVerifier, err := chain.NewPolygonVerifier(
			cfg.Chain.RPCURL,
			cfg.Chain.USDTContract,
			cfg.Chain.DepositAddress,
			int(cfg.Chain.MinConfirmations),
			cfg.Chain.RequestTimeout,
			logger,
		)
		if err != nil {
			logger.Fatal("polygon verifier init failed", zap.Error(err))
		}
		defer polygonVerifier.Close()
		verifier = polygonVerifier
	} else {
		logger.Warn("chain rpc not configured, deposits disabled")
		verifier = disabledVerifier{}
	}

	// Сервисы
	authService := service.NewAuthService(userRepo, walletLedger, cfg.Security.JWTSecret, cfg.Security.TokenTTL, logger)
	walletService := service.NewWalletService(walletLedger, depositRepo, verifier, marketService.Cache(), logger)
	botService := service.NewBotService(botRepo, subRepo, feeRepo, orderRepo, state, marketService.Cache(), logger)

	// WebSocket hub: рассылка тикеров подключенным клиентам
	hub := websocket.NewHub(logger)
	go hub.Run()
	marketService.OnTicker(hub.BroadcastTicker)
	engine.OnTrade(hub.BroadcastTrade)
	subManager.OnStatusChange(hub.BroadcastSubscription)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Фоновые процессы
	marketService.Start(ctx)
	runner.Start(ctx)

	perfJob := stats.NewJob(botRepo, subRepo, orderRepo, state, logger)
	sched := scheduler.New(logger)
	sched.Add(scheduler.Job{
		Name:     "subscription-renewals",
		Interval: cfg.Bot.RenewalInterval,
		Jitter:   time.Minute,
		Run: func(ctx context.Context) {
			subManager.RunRenewals(time.Now().UTC())
		},
	})
	sched.Add(scheduler.Job{
		Name:     "bot-performance",
		Interval: cfg.Bot.PerfInterval,
		Jitter:   5 * time.Minute,
		Run:      perfJob.Run,
	})
	sched.Start(ctx)

	// HTTP сервер
	deps := &api.Dependencies{
		AuthService:   authService,
		WalletService: walletService,
		BotService:    botService,
		MarketService: marketService,
		Subscriptions: subManager,
		Engine:        engine,
		Orders:        orderRepo,
		Venue:         binanceClient,
		Hub:           hub,
		Logger:        logger,
	}
	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	sched.Stop()
	runner.Stop()
	marketService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("server stopped")
}

// initDatabase открывает пул соединений Postgres и проверяет его
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// disabledVerifier отклоняет все депозиты при отсутствии RPC-ноды
type disabledVerifier struct{}

func (disabledVerifier) Verify(ctx context.Context, txHash string) (*chain.VerifiedDeposit, error) {
	return nil, chain.ErrTxNotFound
}
