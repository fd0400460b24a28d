package bot

import (
	"math"
	"testing"
)

// ============================================================
// RSI Tests
// ============================================================

func TestRSIMonotonicUp(t *testing.T) {
	// 16 монотонно растущих точек при периоде 14: нет ни одного
	// убытка, RSI обязан уйти в перекупленность
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	value := RSI(closes, 14)
	if value <= 70 {
		t.Errorf("expected RSI > 70 for monotonic uptrend, got %.2f", value)
	}
	// Средний убыток равен нулю
	if value != 100 {
		t.Errorf("expected RSI = 100 when there are no losses, got %.2f", value)
	}
}

func TestRSIMonotonicDown(t *testing.T) {
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}

	value := RSI(closes, 14)
	if value >= 30 {
		t.Errorf("expected RSI < 30 for monotonic downtrend, got %.2f", value)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
	}{
		{"empty", nil},
		{"two points", []float64{100, 101}},
		{"period length exactly", make([]float64, 14)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RSI(tt.closes, 14); got != 50 {
				t.Errorf("expected neutral 50 with %d closes, got %.2f", len(tt.closes), got)
			}
		})
	}
}

func TestRSIMixed(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 102, 104, 103, 105, 104, 106, 105, 107, 106, 108, 107}

	value := RSI(closes, 14)
	if value <= 0 || value >= 100 {
		t.Errorf("expected RSI inside (0, 100), got %.2f", value)
	}
	if value <= 50 {
		t.Errorf("expected RSI above neutral for net uptrend, got %.2f", value)
	}
}

// ============================================================
// Bollinger Tests
// ============================================================

func TestBollingerFlatSeries(t *testing.T) {
	// 20 одинаковых точек: sigma = 0, полосы совпадают со средней,
	// цена внутри (не ниже lower и не выше upper)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}

	lower, upper := Bollinger(closes, 20, 2)
	if lower != 50 || upper != 50 {
		t.Errorf("expected degenerate bands at 50, got [%.2f, %.2f]", lower, upper)
	}

	last := closes[len(closes)-1]
	if last > upper || last < lower {
		t.Errorf("flat price must stay inside bands: price %.2f, bands [%.2f, %.2f]", last, lower, upper)
	}
}

func TestBollingerSpikeAboveUpper(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}
	// Последняя точка на 30% выше: обязана пробить верхнюю полосу
	closes[19] = 65

	lower, upper := Bollinger(closes, 20, 2)
	if closes[19] <= upper {
		t.Errorf("spike %.2f must exceed upper band %.2f", closes[19], upper)
	}
	if lower >= upper {
		t.Errorf("expected lower < upper, got [%.2f, %.2f]", lower, upper)
	}
}

func TestBollingerShortWindowFallback(t *testing.T) {
	closes := []float64{100, 101, 102}

	lower, upper := Bollinger(closes, 20, 2)
	last := closes[len(closes)-1]
	if math.Abs(lower-last*0.95) > 1e-9 || math.Abs(upper-last*1.05) > 1e-9 {
		t.Errorf("expected +/-5%% fallback bands, got [%.2f, %.2f]", lower, upper)
	}
	if last < lower || last > upper {
		t.Error("fallback bands must bracket the last price")
	}
}

// ============================================================
// SMA Tests
// ============================================================

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		period int
		want   float64
	}{
		{"empty", nil, 5, 0},
		{"full window", []float64{1, 2, 3, 4, 5}, 5, 3},
		{"takes tail", []float64{100, 1, 2, 3}, 3, 2},
		{"short window averaged whole", []float64{4, 6}, 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SMA(tt.closes, tt.period); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("SMA = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}
