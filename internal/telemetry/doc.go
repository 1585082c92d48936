// Package telemetry обеспечивает наблюдаемость воркера.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики и HTTP endpoint /metrics, /healthz
//   - host.go    — load average, число CPU и объём RAM (gopsutil)
package telemetry
