package driver

import (
	"context"
	"log/slog"
)

// Pool держит не более одной открытой сессии.
//
// Сессия переиспользуется, пока совпадают адаптер и база.
// Смена базы закрывает старую сессию перед открытием новой.
// Pool не потокобезопасен: воркер обрабатывает один task за раз.
type Pool struct {
	logger *slog.Logger

	session Session
	backend string
	db      string
}

// NewPool создаёт пустой Pool.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{logger: logger}
}

// Acquire возвращает сессию для target, открывая её при необходимости.
func (p *Pool) Acquire(ctx context.Context, d Driver, target Target) (Session, error) {
	if p.session != nil && p.backend == d.Name() && p.db == target.DB {
		return p.session, nil
	}

	if p.session != nil {
		p.Release()
	}

	p.logger.Debug("opening session", "dbms", d.Name(), "db", target.DB)

	session, err := d.Open(ctx, target)
	if err != nil {
		return nil, err
	}

	p.session = session
	p.backend = d.Name()
	p.db = target.DB
	return session, nil
}

// Release закрывает текущую сессию, если она есть.
func (p *Pool) Release() {
	if p.session == nil {
		return
	}

	p.logger.Debug("closing session", "dbms", p.backend, "db", p.db)

	if err := p.session.Close(); err != nil {
		p.logger.Warn("failed to close session", "dbms", p.backend, "db", p.db, "error", err)
	}
	p.session = nil
	p.backend = ""
	p.db = ""
}

// Active сообщает, открыта ли сессия, и к какой базе.
func (p *Pool) Active() (backend, db string, ok bool) {
	return p.backend, p.db, p.session != nil
}

// Close закрывает пул при остановке воркера.
func (p *Pool) Close() {
	p.Release()
}
