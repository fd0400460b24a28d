package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Security SecurityConfig
	Bot      BotConfig
	Market   MarketConfig
	Binance  BinanceConfig
	Chain    ChainConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// RedisConfig - настройки Redis (кеш тикеров, состояние ботов)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	JWTSecret     string
	EncryptionKey string        // AES-256 ключ для Binance API secret
	TokenTTL      time.Duration // срок жизни access token
}

// BotConfig - настройки исполнения ботов и продления подписок
type BotConfig struct {
	RunInterval     time.Duration // период цикла исполнения ботов
	RenewalInterval time.Duration // период проверки продлений подписок
	PerfInterval    time.Duration // период агрегации bot_performance
	SignalInterval  time.Duration // cooldown сигналов по умолчанию
}

// MarketConfig - настройки рыночных данных
type MarketConfig struct {
	Pairs        []string      // поддерживаемые пары (BTC_USDT, ...)
	PollInterval time.Duration // период опроса CoinGecko
	CacheTTL     time.Duration // TTL кеша тикеров
}

// BinanceConfig - настройки реального исполнения (hedge-ордера)
type BinanceConfig struct {
	BaseURL            string
	APIKey             string
	APISecretEncrypted string // AES-256-GCM, base64
	LiveTrading        bool
	RequestTimeout     time.Duration
}

// ChainConfig - настройки верификации депозитов в сети Polygon
type ChainConfig struct {
	RPCURL           string
	DepositAddress   string // адрес платформы для депозитов USDT
	USDTContract     string
	MinConfirmations int64
	RequestTimeout   time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения.
// Файл .env, если присутствует, подхватывается до чтения окружения.
func Load() (*Config, error) {
	// .env опционален: в production переменные приходят из окружения
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "exchange"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Security: SecurityConfig{
			JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			TokenTTL:      getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		},
		Bot: BotConfig{
			RunInterval:     getEnvAsDuration("BOT_RUN_INTERVAL", 10*time.Second),
			RenewalInterval: getEnvAsDuration("RENEWAL_CHECK_INTERVAL", 1*time.Hour),
			PerfInterval:    getEnvAsDuration("PERFORMANCE_UPDATE_INTERVAL", 24*time.Hour),
			SignalInterval:  getEnvAsDuration("SIGNAL_INTERVAL", 300*time.Second),
		},
		Market: MarketConfig{
			Pairs:        getEnvAsSlice("MARKET_PAIRS", []string{"BTC_USDT", "ETH_USDT", "BNB_USDT", "SOL_USDT"}),
			PollInterval: getEnvAsDuration("MARKET_POLL_INTERVAL", 10*time.Second),
			CacheTTL:     getEnvAsDuration("MARKET_CACHE_TTL", 60*time.Second),
		},
		Binance: BinanceConfig{
			BaseURL:            getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
			APIKey:             getEnv("BINANCE_API_KEY", ""),
			APISecretEncrypted: getEnv("BINANCE_API_SECRET_ENCRYPTED", ""),
			LiveTrading:        getEnvAsBool("BINANCE_LIVE_TRADING", false),
			RequestTimeout:     getEnvAsDuration("BINANCE_REQUEST_TIMEOUT", 15*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:           getEnv("POLYGON_RPC_URL", "https://polygon-rpc.com"),
			DepositAddress:   getEnv("PLATFORM_DEPOSIT_ADDRESS", ""),
			USDTContract:     getEnv("POLYGON_USDT_CONTRACT", "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"),
			MinConfirmations: int64(getEnvAsInt("DEPOSIT_MIN_CONFIRMATIONS", 6)),
			RequestTimeout:   getEnvAsDuration("POLYGON_REQUEST_TIMEOUT", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required for authentication")
	}

	if c.Security.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be changed from default value in production")
	}

	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}

	// ENCRYPTION_KEY обязателен только при включенной реальной торговле:
	// без него невозможно расшифровать Binance API secret
	if c.Binance.LiveTrading {
		if len(c.Security.EncryptionKey) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256 when BINANCE_LIVE_TRADING is enabled")
		}
		if c.Binance.APIKey == "" || c.Binance.APISecretEncrypted == "" {
			return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET_ENCRYPTED are required when BINANCE_LIVE_TRADING is enabled")
		}
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Bot.RunInterval <= 0 {
		return fmt.Errorf("BOT_RUN_INTERVAL must be positive, got %v", c.Bot.RunInterval)
	}

	if c.Bot.SignalInterval <= 0 {
		return fmt.Errorf("SIGNAL_INTERVAL must be positive, got %v", c.Bot.SignalInterval)
	}

	if c.Market.PollInterval <= 0 {
		return fmt.Errorf("MARKET_POLL_INTERVAL must be positive, got %v", c.Market.PollInterval)
	}

	if len(c.Market.Pairs) == 0 {
		return fmt.Errorf("MARKET_PAIRS cannot be empty")
	}

	if c.Chain.MinConfirmations < 1 {
		return fmt.Errorf("DEPOSIT_MIN_CONFIRMATIONS must be at least 1, got %d", c.Chain.MinConfirmations)
	}

	return nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

// getEnvAsInt возвращает значение переменной окружения как int
func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// getEnvAsBool возвращает значение переменной окружения как bool
func getEnvAsBool(key string, defaultVal bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration
func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultVal
}

// getEnvAsSlice возвращает значение переменной окружения как список строк
// (разделитель - запятая)
func getEnvAsSlice(key string, defaultVal []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}
