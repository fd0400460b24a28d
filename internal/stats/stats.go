package stats

import (
	"github.com/shopspring/decimal"

	"github.com/forlabsio/crypto-exchange/internal/models"
	"github.com/forlabsio/crypto-exchange/pkg/utils"
)

// Fill - исполненный ордер вместе с его сделкой
type Fill struct {
	Side     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Report - метрики одной подписки пользователя на бота
type Report struct {
	PnlUSDT        float64 `json:"pnl_usdt"`
	PnlPct         float64 `json:"pnl_pct"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TotalTrades    int     `json:"total_trades"`
}

// Compute реплеит историю сделок подписки в хронологическом порядке
// и считает метрики.
//
// allocated - выделенный подпиской капитал, база для pnl_pct и
// стартовая наличность ряда стоимости портфеля. markPrice - текущая
// цена для переоценки незакрытой позиции; для исторических срезов
// передается ноль и нереализованная часть не учитывается.
//
// Средняя цена входа накапливается по всем покупкам за историю и
// продажами не сбрасывается. Продажа выигрышная, когда ее цена выше
// этой средней; доходность каждой продажи относительно средней
// образует ряд для Шарпа. Стоимость портфеля после каждой сделки
// (наличность плюс позиция по цене сделки) образует ряд для просадки.
func Compute(fills []Fill, allocated, markPrice decimal.Decimal) Report {
	var (
		buyCost      = decimal.Zero
		buyQtyTotal  = decimal.Zero
		sellProceeds = decimal.Zero
		netQty       = decimal.Zero
		runningUSDT  = allocated
		runningBase  = decimal.Zero

		wins, sells  int
		tradeReturns []float64
		series       []float64
	)

	for _, f := range fills {
		if !f.Price.IsPositive() {
			continue
		}
		value := f.Price.Mul(f.Quantity)

		switch f.Side {
		case models.OrderSideBuy:
			buyCost = buyCost.Add(value)
			buyQtyTotal = buyQtyTotal.Add(f.Quantity)
			netQty = netQty.Add(f.Quantity)
			runningUSDT = runningUSDT.Sub(value)
			runningBase = runningBase.Add(f.Quantity)

		case models.OrderSideSell:
			avgCost := decimal.Zero
			if buyQtyTotal.IsPositive() {
				avgCost = buyCost.Div(buyQtyTotal)
			}
			sellProceeds = sellProceeds.Add(value)
			netQty = netQty.Sub(f.Quantity)
			runningUSDT = runningUSDT.Add(value)
			runningBase = runningBase.Sub(f.Quantity)
			if runningBase.IsNegative() {
				runningBase = decimal.Zero
			}
			sells++
			if f.Price.GreaterThan(avgCost) {
				wins++
			}
			if avgCost.IsPositive() {
				r, _ := f.Price.Sub(avgCost).Div(avgCost).Mul(decimal.NewFromInt(100)).Float64()
				tradeReturns = append(tradeReturns, r)
			}
		}

		pv, _ := runningUSDT.Add(runningBase.Mul(f.Price)).Float64()
		series = append(series, pv)
	}

	if netQty.IsNegative() {
		netQty = decimal.Zero
	}
	unrealized := netQty.Mul(markPrice)
	pnl := sellProceeds.Add(unrealized).Sub(buyCost)

	report := Report{TotalTrades: len(fills)}
	report.PnlUSDT, _ = pnl.Float64()
	if allocated.IsPositive() {
		report.PnlPct, _ = pnl.Div(allocated).Mul(decimal.NewFromInt(100)).Float64()
	}
	if sells > 0 {
		report.WinRate = float64(wins) / float64(sells) * 100
	}
	report.MaxDrawdownPct = maxDrawdown(series)
	report.SharpeRatio = sharpe(tradeReturns)
	return report
}

// maxDrawdown возвращает максимальную просадку ряда от пика до впадины
// в процентах. Просадка определена только после первого положительного
// пика.
func maxDrawdown(series []float64) float64 {
	var peak, maxDD float64
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpe считает коэффициент Шарпа по доходностям продаж.
// Стандартное отклонение берется по всей совокупности наблюдений,
// а не по выборке.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	std := utils.StdDevPopulation(returns)
	if std == 0 {
		return 0
	}
	return utils.Mean(returns) / std
}
