package worker

import "time"

// Backoff — линейная задержка между пустыми опросами очереди.
//
// Каждый Next возвращает текущую задержку и увеличивает её на step,
// не выше max. Reset возвращает задержку к base.
type Backoff struct {
	base    time.Duration
	step    time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff создаёт Backoff. max < base поднимается до base.
func NewBackoff(base, step, max time.Duration) *Backoff {
	if max < base {
		max = base
	}
	return &Backoff{base: base, step: step, max: max, current: base}
}

// Next возвращает задержку перед следующим опросом и наращивает её.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current += b.step
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Current возвращает задержку, которую вернёт следующий Next.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Reset сбрасывает задержку после полученного task.
func (b *Backoff) Reset() {
	b.current = b.base
}
