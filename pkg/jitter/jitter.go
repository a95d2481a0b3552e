// Package jitter вычисляет интервалы повторных попыток с экспоненциальным ростом и случайным разбросом,
// чтобы повторные запросы к ML-сервису не приходили одновременно.
package jitter

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultJitter — стандартный коэффициент джиттера (50%)
const DefaultJitter = 0.5

// Backoff описывает политику задержек между попытками.
type Backoff struct {
	Base   time.Duration // задержка перед второй попыткой
	Max    time.Duration // верхняя граница задержки без учёта джиттера
	Jitter float64       // доля случайной добавки, 0.5 = до +50%

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff создаёт политику с собственным генератором случайных чисел.
func NewBackoff(base, max time.Duration, jitterFactor float64) *Backoff {
	return NewBackoffWithRand(base, max, jitterFactor, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewBackoffWithRand создаёт политику с заданным генератором. Полезно для детерминированных тестов.
func NewBackoffWithRand(base, max time.Duration, jitterFactor float64, rng *rand.Rand) *Backoff {
	if max < base {
		max = base
	}

	return &Backoff{
		Base:   base,
		Max:    max,
		Jitter: jitterFactor,
		rng:    rng,
	}
}

// Next возвращает задержку для попытки attempt (нумерация с нуля).
// Результат лежит в диапазоне [d, d*(1+Jitter)], где d = min(Base*2^attempt, Max).
func (b *Backoff) Next(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	b.mu.Lock()
	extra := b.rng.Float64() * b.Jitter * float64(d)
	b.mu.Unlock()

	return d + time.Duration(extra)
}
