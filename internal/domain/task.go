package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Task — единица работы, выданная сервисом очереди.
//
// Task создаётся сервером (get_work) и потребляется воркером ровно один раз.
// Воркер не изменяет полученный task: все производные значения
// (runlength, timeout, конкретные запросы) вычисляются в локальных копиях.
type Task struct {
	// Ticket — билет, по которому выдан task (если сервер его вернул).
	Ticket string `json:"ticket,omitempty"`

	// Exp, Tag, PTag — идентификаторы эксперимента и запроса на стороне сервера.
	// Сервер коррелирует результат по этим полям, воркер передаёт их как есть.
	Exp  any `json:"exp,omitempty"`
	Tag  any `json:"tag,omitempty"`
	PTag any `json:"ptag,omitempty"`

	// DBMS — имя бэкенда: "monetdb", "postgresql", "sqlite", ...
	DBMS string `json:"dbms"`

	// DB — имя базы данных на стороне бэкенда.
	DB string `json:"db"`

	Project    string `json:"project,omitempty"`
	Experiment string `json:"experiment,omitempty"`

	// Query — шаблон запроса. Параметры подставляются engine.Expand.
	Query string `json:"query"`

	// Params — именованные списки значений параметров (порядок ключей сохраняется).
	Params Params `json:"params,omitempty"`

	// Options — дополнительные опции в виде JSON-строки, например {"runlength": 5}.
	Options string `json:"options,omitempty"`

	// Runlength — количество повторов запроса для каждой привязки параметров.
	Runlength Count `json:"runlength,omitempty"`

	// Timeout — таймаут одного выполнения в секундах (0 — без таймаута).
	Timeout Count `json:"timeout,omitempty"`

	// Error — сервер вернул ошибку вместо task.
	Error string `json:"error,omitempty"`
}

// ResolveRunlength вычисляет количество повторов.
//
// Порядок: task.runlength, затем options.runlength, затем fallback (из секции драйвера), иначе 1.
func (t *Task) ResolveRunlength(fallback int) int {
	if t.Runlength > 0 {
		return int(t.Runlength)
	}
	if t.Options != "" {
		var opts struct {
			Runlength Count `json:"runlength"`
		}
		if err := json.Unmarshal([]byte(t.Options), &opts); err == nil && opts.Runlength > 0 {
			return int(opts.Runlength)
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

// Label возвращает короткий идентификатор task для логов.
func (t *Task) Label() string {
	parts := make([]string, 0, 3)
	for _, v := range []any{t.Exp, t.Tag, t.PTag} {
		if v != nil {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	if len(parts) == 0 {
		return t.Ticket
	}
	return strings.Join(parts, "/")
}

// Count — неотрицательное целое, которое сервер присылает то числом, то строкой.
type Count int

// UnmarshalJSON принимает 3, "3" и null.
func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*c = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid count %q: %w", s, err)
	}
	if f < 0 {
		return fmt.Errorf("invalid count %q: negative", s)
	}
	*c = Count(f)
	return nil
}
