package bot

import "math"

// RSI считает Relative Strength Index по ценам закрытия (SMA-вариант,
// без сглаживания Уайлдера).
//
// Краевые случаи:
//   - меньше period+1 точек: возвращается нейтральное значение 50,
//     чтобы холодный старт не генерировал сигналов
//   - средний убыток равен нулю: RSI = 100
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	window := closes[len(closes)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses += -delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SMA считает простую скользящую среднюю последних period точек.
// Короткое окно усредняется целиком.
func SMA(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if len(closes) > period {
		closes = closes[len(closes)-period:]
	}
	var sum float64
	for _, v := range closes {
		sum += v
	}
	return sum / float64(len(closes))
}

// Bollinger считает полосы Боллинджера (SMA +/- k*sigma, sigma по
// полной выборке окна).
//
// При окне короче period возвращается вырожденная пара
// last*0.95 / last*1.05, чтобы цена гарантированно оказалась внутри
// полос и сигнала не было.
func Bollinger(closes []float64, period int, k float64) (lower, upper float64) {
	if len(closes) == 0 {
		return 0, 0
	}
	if len(closes) < period {
		last := closes[len(closes)-1]
		return last * 0.95, last * 1.05
	}

	window := closes[len(closes)-period:]
	mean := SMA(window, period)

	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(len(window)))

	return mean - k*sigma, mean + k*sigma
}
