package bot

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseStrategyConfig разбирает JSON конфигурации стратегии и
// подставляет значения по умолчанию
func ParseStrategyConfig(raw []byte) (*StrategyConfig, error) {
	cfg := &StrategyConfig{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse strategy config: %w", err)
		}
	}
	cfg.Normalize()
	return cfg, nil
}

// Signal - торговый сигнал стратегии
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalNone Signal = "none"
)

// Стратегии, поддерживаемые платформой
const (
	StrategyAlternating = "alternating"
	StrategyRSI         = "rsi"
	StrategyMACross     = "ma_cross"
	StrategyBollinger   = "bollinger"
)

// StrategyConfig - параметры стратегии бота.
//
// Хранится в bots.strategy_config как JSON. Неуказанные поля
// получают значения по умолчанию через Normalize.
type StrategyConfig struct {
	Pair string `json:"pair"`

	// Доля свободного баланса на одну сделку, в процентах
	TradePct float64 `json:"trade_pct"`

	// Минимальный интервал между сделками
	CooldownSec int `json:"cooldown_sec"`

	// rsi
	RSIPeriod     int     `json:"rsi_period"`
	RSIOverbought float64 `json:"rsi_overbought"`
	RSIOversold   float64 `json:"rsi_oversold"`

	// ma_cross
	FastPeriod int `json:"fast_period"`
	SlowPeriod int `json:"slow_period"`

	// bollinger
	BollingerPeriod int     `json:"bollinger_period"`
	BollingerK      float64 `json:"bollinger_k"`
}

// Normalize подставляет значения по умолчанию вместо нулевых полей
func (c *StrategyConfig) Normalize() {
	if c.TradePct <= 0 {
		c.TradePct = 10
	}
	if c.CooldownSec <= 0 {
		c.CooldownSec = 300
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.RSIOverbought <= 0 {
		c.RSIOverbought = 70
	}
	if c.RSIOversold <= 0 {
		c.RSIOversold = 30
	}
	if c.FastPeriod <= 0 {
		c.FastPeriod = 7
	}
	if c.SlowPeriod <= 0 {
		c.SlowPeriod = 25
	}
	if c.BollingerPeriod <= 0 {
		c.BollingerPeriod = 20
	}
	if c.BollingerK <= 0 {
		c.BollingerK = 2
	}
}

// Cooldown возвращает минимальный интервал между сделками
func (c *StrategyConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSec) * time.Second
}

// Evaluate вычисляет сигнал стратегии по ценам закрытия.
//
// lastSide - сторона последней исполненной сделки бота, нужна только
// alternating-стратегии. Неизвестный тип стратегии - ошибка
// конфигурации бота, а не рыночная ситуация, поэтому возвращается
// error, а не none.
func Evaluate(strategyType string, cfg *StrategyConfig, closes []float64, lastSide Signal, log *zap.Logger) (Signal, error) {
	switch strategyType {
	case StrategyAlternating:
		return evalAlternating(lastSide), nil
	case StrategyRSI:
		return evalRSI(cfg, closes), nil
	case StrategyMACross:
		return evalMACross(cfg, closes, log), nil
	case StrategyBollinger:
		return evalBollinger(cfg, closes), nil
	default:
		return SignalNone, fmt.Errorf("unknown strategy type %q", strategyType)
	}
}

// evalAlternating чередует стороны независимо от цены: после покупки
// всегда продажа и наоборот. Стратегия детерминированная, используется
// для смоук-прогонов всего торгового контура.
func evalAlternating(lastSide Signal) Signal {
	if lastSide == SignalBuy {
		return SignalSell
	}
	return SignalBuy
}

func evalRSI(cfg *StrategyConfig, closes []float64) Signal {
	value := RSI(closes, cfg.RSIPeriod)
	switch {
	case value > cfg.RSIOverbought:
		return SignalSell
	case value < cfg.RSIOversold:
		return SignalBuy
	default:
		return SignalNone
	}
}

// evalMACross сигналит по пересечению быстрой и медленной SMA на
// последних двух барах
func evalMACross(cfg *StrategyConfig, closes []float64, log *zap.Logger) Signal {
	if cfg.FastPeriod >= cfg.SlowPeriod {
		log.Warn("ma_cross misconfigured, fast period must be below slow",
			zap.Int("fast", cfg.FastPeriod),
			zap.Int("slow", cfg.SlowPeriod),
		)
		return SignalNone
	}
	if len(closes) < cfg.SlowPeriod+1 {
		return SignalNone
	}

	prev := closes[:len(closes)-1]
	fastPrev := SMA(prev, cfg.FastPeriod)
	slowPrev := SMA(prev, cfg.SlowPeriod)
	fastNow := SMA(closes, cfg.FastPeriod)
	slowNow := SMA(closes, cfg.SlowPeriod)

	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		return SignalBuy
	case fastPrev >= slowPrev && fastNow < slowNow:
		return SignalSell
	default:
		return SignalNone
	}
}

// evalBollinger сигналит на касании полос: закрытие на нижней полосе
// или ниже - покупка, на верхней или выше - продажа. При нулевой
// волатильности полосы совпадают и касание нижней проверяется первым.
func evalBollinger(cfg *StrategyConfig, closes []float64) Signal {
	if len(closes) == 0 {
		return SignalNone
	}
	lower, upper := Bollinger(closes, cfg.BollingerPeriod, cfg.BollingerK)
	last := closes[len(closes)-1]
	switch {
	case last <= lower:
		return SignalBuy
	case last >= upper:
		return SignalSell
	default:
		return SignalNone
	}
}
