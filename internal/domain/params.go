package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidParams — params task'а не удалось разобрать.
var ErrInvalidParams = errors.New("invalid task params")

// Param — один именованный параметр шаблона со списком значений-кандидатов.
type Param struct {
	Name   string
	Values []any
}

// Params — упорядоченный набор параметров.
//
// Порядок ключей важен: сервер сопоставляет Run Records с привязками по позиции,
// поэтому Params сохраняет порядок ключей JSON-объекта, а не сортирует их.
//
// На проводе значение каждого ключа — JSON-строка со списком ("[1, 2]"),
// но принимается и сам список, и одиночное значение.
type Params []Param

// Names возвращает имена параметров в порядке объявления.
func (p Params) Names() []string {
	names := make([]string, len(p))
	for i, param := range p {
		names[i] = param.Name
	}
	return names
}

// Combinations возвращает размер декартова произведения (1 для пустых Params).
func (p Params) Combinations() int {
	n := 1
	for _, param := range p {
		n *= len(param.Values)
	}
	return n
}

// UnmarshalJSON разбирает JSON-объект, сохраняя порядок ключей.
func (p *Params) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}

	// Иногда params приходит целиком строкой с JSON-объектом внутри
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if inner == "" {
			*p = nil
			return nil
		}
		return p.UnmarshalJSON([]byte(inner))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected object, got %v", ErrInvalidParams, tok)
	}

	var result Params
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected key %v", ErrInvalidParams, keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidParams, name, err)
		}

		values, err := decodeValues(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidParams, name, err)
		}
		result = append(result, Param{Name: name, Values: values})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	*p = result
	return nil
}

// MarshalJSON кодирует Params обратно в объект "имя → JSON-строка со списком".
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		values := param.Values
		if values == nil {
			values = []any{}
		}
		list, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(string(list))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeValues разбирает значение одного параметра в список.
func decodeValues(raw json.RawMessage) ([]any, error) {
	raw = bytes.TrimSpace(raw)

	// JSON-строка, внутри которой закодирован список
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		inner := bytes.TrimSpace([]byte(s))
		if len(inner) > 0 && inner[0] == '[' {
			raw = inner
		} else {
			return []any{s}, nil
		}
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	if list, ok := v.([]any); ok {
		return list, nil
	}
	return []any{v}, nil
}
