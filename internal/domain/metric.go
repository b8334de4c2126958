package domain

import (
	"fmt"
	"math"
	"strings"
)

// Metric: метрика векторного индекса. Фиксируется при развёртывании.
type Metric int

const (
	// MetricCosine: косинусная близость, больше значит ближе.
	MetricCosine Metric = iota
	// MetricEuclidean: евклидово расстояние, меньше значит ближе.
	MetricEuclidean
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclid"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric разбирает имя метрики из конфигурации.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "cos":
		return MetricCosine, nil
	case "euclid", "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// ToDistance переводит score метрики в шкалу "меньше — лучше".
// Все сравнения при ранжировании идут только через неё.
func (m Metric) ToDistance(score float32) float32 {
	if m == MetricCosine {
		return 1 - score
	}

	return score
}

// Optimum: значение score при точном совпадении единичных векторов.
func (m Metric) Optimum() float32 {
	if m == MetricCosine {
		return 1
	}

	return 0
}

// Score вычисляет score пары единичных векторов в единицах метрики.
func (m Metric) Score(a, b []float32) float32 {
	if m == MetricCosine {
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(dot)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return float32(math.Sqrt(sum))
}
