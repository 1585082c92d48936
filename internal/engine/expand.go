package engine

import (
	"github.com/shaiso/squll/internal/domain"
)

// Expansion — одна конкретная пара "привязка + запрос".
type Expansion struct {
	// Index — позиция в порядке перечисления декартова произведения.
	Index int

	// Binding — значения параметров.
	Binding domain.Binding

	// Query — шаблон с подставленными значениями.
	Query string
}

// Expander разворачивает шаблон запроса по декартову произведению Params.
//
// Порядок перечисления — внешний контракт: первый параметр меняется
// медленнее всех, последний — быстрее.
// Пустые Params дают ровно одну пустую привязку.
type Expander struct {
	params domain.Params
	subst  Substituter

	// odometer: текущие индексы значений для каждого параметра
	indices []int
	index   int
	done    bool
}

// NewExpander создаёт Expander. Шаблон разбирается один раз при создании.
func NewExpander(template string, params domain.Params, mode Mode) (*Expander, error) {
	subst, err := NewSubstituter(template, params.Names(), mode)
	if err != nil {
		return nil, err
	}

	e := &Expander{
		params:  params,
		subst:   subst,
		indices: make([]int, len(params)),
	}

	// Параметр без значений — произведение пустое
	for _, p := range params {
		if len(p.Values) == 0 {
			e.done = true
		}
	}

	return e, nil
}

// Len возвращает общее количество привязок.
func (e *Expander) Len() int {
	return e.params.Combinations()
}

// Next возвращает следующую привязку. ok == false, когда перечисление закончено.
func (e *Expander) Next() (Expansion, bool) {
	if e.done {
		return Expansion{}, false
	}

	binding := make(domain.Binding, len(e.params))
	for i, p := range e.params {
		binding[i] = domain.Assignment{Name: p.Name, Value: p.Values[e.indices[i]]}
	}

	exp := Expansion{
		Index:   e.index,
		Binding: binding,
		Query:   e.subst.Substitute(binding),
	}

	e.index++
	e.advance()

	return exp, true
}

// advance сдвигает odometer: последний параметр крутится быстрее всех.
func (e *Expander) advance() {
	for i := len(e.indices) - 1; i >= 0; i-- {
		e.indices[i]++
		if e.indices[i] < len(e.params[i].Values) {
			return
		}
		e.indices[i] = 0
	}
	// Перенос за старший разряд (или Params пусты) — перечисление закончено
	e.done = true
}

// Expand — удобная обёртка: возвращает все привязки списком.
func Expand(template string, params domain.Params, mode Mode) ([]Expansion, error) {
	e, err := NewExpander(template, params, mode)
	if err != nil {
		return nil, err
	}

	result := make([]Expansion, 0, e.Len())
	for {
		exp, ok := e.Next()
		if !ok {
			break
		}
		result = append(result, exp)
	}
	return result, nil
}
