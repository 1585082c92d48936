// Package worker выполняет task сервиса очереди на локальном бэкенде.
//
// # Обзор
//
// Worker — однопоточный цикл:
//
//	IDLE → FETCHING → EXECUTING → SUBMITTING → IDLE
//
// Из любого состояния воркер переходит в TERMINATED: работа кончилась
// (вне daemon-режима), ctx отменён или исчерпан bailout.
//
// # Ключевые компоненты
//
// ## Runner
//
// Выполняет один конкретный запрос runlength раз через driver.Session
// и собирает domain.RunRecord: times, chksum, clock, load до и после серии.
// Первая ошибка завершает серию.
//
// ## Controller
//
// Обрабатывает task целиком: адаптер из driver.Registry, сессия из driver.Pool,
// развёртка параметров через engine.Expander, Runner на каждую привязку.
// По умолчанию ошибка привязки не прерывает task (AbortOnError меняет это),
// потеря соединения прерывает.
//
// ## Worker
//
//	w := worker.New(worker.Config{
//	    Source:     client,
//	    Controller: controller,
//	    Daemon:     cfg.Daemon,
//	    Bailout:    cfg.Bailout,
//	    Logger:     logger,
//	})
//	err := w.Run(ctx)
//
// # Backoff
//
// Пустой опрос (нет работы или сервер недоступен) — пауза base, затем
// base+step, ... до max. Первый полученный task сбрасывает паузу к base.
//
// # Bailout
//
// Каждая ошибка уменьшает счётчик: запись с error в Result Set, ошибка сервера,
// а вне daemon-режима ещё и недоступность сервера и неудачная сдача результата.
// На нуле воркер сдаёт текущий результат и останавливается с ErrBailout,
// даже в daemon-режиме.
package worker
