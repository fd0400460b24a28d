package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики торгового цикла ботов
var (
	iterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_runner_iterations_total",
		Help: "Number of completed trading loop iterations per bot",
	}, []string{"bot_id"})

	signalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_runner_signals_total",
		Help: "Strategy signals emitted, by bot and signal",
	}, []string{"bot_id", "signal"})

	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_runner_orders_total",
		Help: "Subscriber orders settled by the trading loop",
	}, []string{"bot_id", "side"})

	orderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_runner_order_errors_total",
		Help: "Subscriber orders that failed to settle",
	}, []string{"bot_id"})

	hedgeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_runner_hedge_errors_total",
		Help: "Aggregate hedge orders that failed on the external venue",
	}, []string{"bot_id"})

	iterationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_runner_iteration_duration_seconds",
		Help:    "Duration of one trading loop iteration",
		Buckets: prometheus.DefBuckets,
	}, []string{"bot_id"})
)
