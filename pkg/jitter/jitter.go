// Package jitter добавляет случайность в интервалы отступления (backoff),
// чтобы повторные запросы клиентов не приходили к сервису одновременно.
package jitter

import (
	"math/rand/v2"
	"time"
)

// DefaultJitter: стандартный коэффициент джиттера (50%)
const DefaultJitter = 0.5

// Duration возвращает продолжительность с применённым джиттером в диапазоне [d, d*(1+factor)].
func Duration(d time.Duration, factor float64) time.Duration {
	return d + time.Duration(rand.Float64()*factor*float64(d))
}

// Backoff: экспоненциальное отступление с джиттером.
type Backoff struct {
	Base   time.Duration // задержка перед первым повтором
	Max    time.Duration // верхняя граница задержки без учёта джиттера
	Factor float64       // коэффициент джиттера
}

func NewBackoff(base, max time.Duration, factor float64) Backoff {
	return Backoff{
		Base:   base,
		Max:    max,
		Factor: factor,
	}
}

// Next возвращает задержку перед повтором attempt (нумерация с нуля).
func (b Backoff) Next(attempt int) time.Duration {
	return Duration(b.exponential(attempt), b.Factor)
}

func (b Backoff) exponential(attempt int) time.Duration {
	backoff := b.Base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= b.Max {
			return b.Max
		}
	}

	return min(backoff, b.Max)
}
