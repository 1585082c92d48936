package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shaiso/squll/internal/domain"
)

// Mode — способ подстановки параметров в шаблон.
type Mode string

const (
	// ModeLiteral — замена подстроки с именем параметра на значение,
	// параметры обрабатываются в порядке объявления. Режим по умолчанию:
	// в этом виде сервер присылает шаблоны. Имя, являющееся подстрокой
	// другого имени или ключевого слова SQL, будет заменено и там.
	ModeLiteral Mode = "literal"

	// ModePlaceholder — явные токены :name, разобранные до подстановки.
	// "::" (приведение типов в PostgreSQL) и неизвестные имена не трогаются.
	// Шаблон без единого токена для параметров task отклоняется.
	ModePlaceholder Mode = "placeholder"
)

// ParseMode разбирает режим подстановки. Пустая строка — ModeLiteral.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLiteral:
		return ModeLiteral, nil
	case ModePlaceholder:
		return ModePlaceholder, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Substituter строит конкретный запрос для привязки.
type Substituter interface {
	Substitute(binding domain.Binding) string
}

// NewSubstituter создаёт Substituter для шаблона и имён параметров.
func NewSubstituter(template string, names []string, mode Mode) (Substituter, error) {
	switch mode {
	case ModePlaceholder:
		return newPlaceholderTemplate(template, names)
	case "", ModeLiteral:
		for _, name := range names {
			if name == "" {
				return nil, fmt.Errorf("%w: empty name", ErrInvalidParamName)
			}
		}
		return literalTemplate(template), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// --- literal ---

type literalTemplate string

func (t literalTemplate) Substitute(binding domain.Binding) string {
	query := string(t)
	for _, a := range binding {
		query = strings.ReplaceAll(query, a.Name, FormatValue(a.Value))
	}
	return query
}

// --- placeholder ---

// segment — кусок разобранного шаблона: либо текст, либо ссылка на параметр.
type segment struct {
	text  string
	param string
}

type placeholderTemplate struct {
	segments []segment
}

func newPlaceholderTemplate(template string, names []string) (*placeholderTemplate, error) {
	known := make(map[string]bool, len(names))
	for _, name := range names {
		if !isIdentifier(name) {
			return nil, fmt.Errorf("%w: %q is not usable as :name placeholder", ErrInvalidParamName, name)
		}
		known[name] = true
	}

	var (
		segments []segment
		text     strings.Builder
		used     int
	)
	flush := func() {
		if text.Len() > 0 {
			segments = append(segments, segment{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(template); {
		c := template[i]
		if c != ':' {
			text.WriteByte(c)
			i++
			continue
		}

		// "::" — приведение типа, оставляем как есть
		if i+1 < len(template) && template[i+1] == ':' {
			text.WriteString("::")
			i += 2
			continue
		}

		j := i + 1
		for j < len(template) && isIdentByte(template[j], j == i+1) {
			j++
		}
		name := template[i+1 : j]
		if name != "" && known[name] {
			flush()
			segments = append(segments, segment{param: name})
			used++
		} else {
			// одиночное ':' или чужое имя (например, '12:30') остаётся текстом
			text.WriteString(template[i:j])
		}
		i = j
	}
	flush()

	// Параметры есть, а токенов нет: шаблон в старом формате, выполнять его как есть нельзя
	if len(names) > 0 && used == 0 {
		return nil, fmt.Errorf("%w: none of %s appears as :name", ErrNoPlaceholders, strings.Join(names, ", "))
	}

	return &placeholderTemplate{segments: segments}, nil
}

func (t *placeholderTemplate) Substitute(binding domain.Binding) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.param == "" {
			b.WriteString(s.text)
			continue
		}
		if v, ok := binding.Get(s.param); ok {
			b.WriteString(FormatValue(v))
		} else {
			b.WriteString(":" + s.param)
		}
	}
	return b.String()
}

// FormatValue рендерит значение параметра в текст запроса.
//
// Числа — в фиксированной десятичной записи без экспоненты, строки — без кавычек
// (кавычки ставит автор шаблона), null — NULL, списки и объекты — JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := val.Float64(); err == nil {
			return formatFloat(f)
		}
		return val.String()
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	default:
		return false
	}
}
