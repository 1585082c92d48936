package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Assignment — значение одного параметра в привязке.
type Assignment struct {
	Name  string
	Value any
}

// Binding — один элемент декартова произведения Params: имя → одно значение.
//
// Binding эфемерен: создаётся engine.Expand и живёт в пределах обработки task.
// Сериализуется как JSON-объект с сохранением порядка параметров.
type Binding []Assignment

// Get возвращает значение параметра по имени.
func (b Binding) Get(name string) (any, bool) {
	for _, a := range b {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// MarshalJSON кодирует привязку как упорядоченный объект; пустая — {}.
func (b Binding) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON разбирает объект, сохраняя порядок ключей. Числа остаются json.Number.
func (b *Binding) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*b = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("binding: expected object, got %v", tok)
	}

	result := Binding{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)

		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
		result = append(result, Assignment{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*b = result
	return nil
}

// LoadSample — снимок средней загрузки хоста (1, 5, 15 минут).
type LoadSample struct {
	Load1  float64
	Load5  float64
	Load15 float64

	// Valid — false, если ОС не отдала load average.
	Valid bool
}

// Values возвращает загрузку списком; для невалидного снимка — пустой список.
func (s LoadSample) Values() []float64 {
	if !s.Valid {
		return nil
	}
	return []float64{s.Load1, s.Load5, s.Load15}
}

// RunMetrics — внутренние метрики хоста вокруг серии запусков.
type RunMetrics struct {
	PreLoad  LoadSample
	PostLoad LoadSample
}

// MarshalJSON кодирует метрики в формате сервера: {"load": preload + postload}.
func (m RunMetrics) MarshalJSON() ([]byte, error) {
	load := append(m.PreLoad.Values(), m.PostLoad.Values()...)
	if load == nil {
		load = []float64{}
	}
	return json.Marshal(struct {
		Load []float64 `json:"load"`
	}{Load: load})
}

// UnmarshalJSON — обратное к MarshalJSON: первые три значения load — до, следующие три — после.
func (m *RunMetrics) UnmarshalJSON(data []byte) error {
	var raw struct {
		Load []float64 `json:"load"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = RunMetrics{}
	if len(raw.Load) >= 3 {
		m.PreLoad = LoadSample{Load1: raw.Load[0], Load5: raw.Load[1], Load15: raw.Load[2], Valid: true}
	}
	if len(raw.Load) >= 6 {
		m.PostLoad = LoadSample{Load1: raw.Load[3], Load5: raw.Load[4], Load15: raw.Load[5], Valid: true}
	}
	return nil
}

// RunRecord — результат измерений одной привязки параметров.
//
// Инварианты:
//   - len(Times) <= runlength; меньше только если Error != ""
//   - len(Fingerprint) == len(Times)
//   - после первой ошибки новых запусков для этой привязки нет
type RunRecord struct {
	// Times — время каждого запуска в миллисекундах.
	// Нативные адаптеры отдают целые ms, CLI-адаптеры — дробные из отчёта утилиты.
	Times []float64 `json:"times"`

	// Fingerprint — первый столбец первой строки результата каждого запуска, либо "".
	Fingerprint []any `json:"chksum"`

	// Param — привязка параметров, для которой выполнялись запуски.
	Param Binding `json:"param"`

	// Error — первая ошибка; "" если все запуски успешны.
	Error string `json:"error"`

	// Clock — локальное время старта каждого запуска.
	Clock []string `json:"clock,omitempty"`

	// Extra — дополнительные составляющие времени от утилиты (например, sql/opt/run у mclient).
	Extra [][]float64 `json:"extra,omitempty"`

	Metrics RunMetrics `json:"metrics"`
}

// NewRunRecord создаёт пустой RunRecord для привязки.
func NewRunRecord(param Binding) RunRecord {
	if param == nil {
		param = Binding{}
	}
	return RunRecord{
		Times:       []float64{},
		Fingerprint: []any{},
		Param:       param,
	}
}

// Failed возвращает true, если запись содержит ошибку.
func (r *RunRecord) Failed() bool {
	return r.Error != ""
}

// ResultSet — все Run Records одного task, в порядке перечисления привязок.
type ResultSet []RunRecord

// ErrorCount возвращает количество записей с ошибкой.
func (rs ResultSet) ErrorCount() int {
	n := 0
	for i := range rs {
		if rs[i].Failed() {
			n++
		}
	}
	return n
}

// FirstError возвращает первую ошибку в наборе или "".
func (rs ResultSet) FirstError() string {
	for i := range rs {
		if rs[i].Failed() {
			return rs[i].Error
		}
	}
	return ""
}

// FailedResultSet строит набор из одной синтетической записи с ошибкой
// (ошибка подключения, неизвестный бэкенд, битые params).
func FailedResultSet(msg string) ResultSet {
	rec := NewRunRecord(nil)
	rec.Error = msg
	return ResultSet{rec}
}
