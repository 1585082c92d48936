package worker

// Bailout — предохранитель от бесконечной работы со сломанным бэкендом или сетью.
//
// Счётчик стартует с limit и уменьшается на каждую ошибку.
// limit <= 0 отключает предохранитель.
type Bailout struct {
	limit     int
	remaining int
}

// NewBailout создаёт счётчик.
func NewBailout(limit int) *Bailout {
	return &Bailout{limit: limit, remaining: limit}
}

// Enabled сообщает, включён ли предохранитель.
func (b *Bailout) Enabled() bool {
	return b.limit > 0
}

// Record учитывает n ошибок.
func (b *Bailout) Record(n int) {
	if !b.Enabled() || n <= 0 {
		return
	}
	b.remaining -= n
	if b.remaining < 0 {
		b.remaining = 0
	}
}

// Exhausted возвращает true, когда воркер должен остановиться.
func (b *Bailout) Exhausted() bool {
	return b.Enabled() && b.remaining <= 0
}

// Remaining возвращает остаток счётчика; -1, если предохранитель выключен.
func (b *Bailout) Remaining() int {
	if !b.Enabled() {
		return -1
	}
	return b.remaining
}
