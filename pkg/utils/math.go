package utils

import "math"

// math.go - математические утилиты для торговых расчетов
//
// Все функции являются чистыми, без побочных эффектов.

// Mean возвращает среднее значение выборки (0 для пустой)
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDevPopulation возвращает стандартное отклонение ПОПУЛЯЦИИ
// (делитель N, не N-1).
//
// Используется в расчете Sharpe-подобного коэффициента: ряд доходностей
// сделок здесь считается полной популяцией, а не выборкой из нее.
func StdDevPopulation(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance)
}
