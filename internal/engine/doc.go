// Package engine разворачивает шаблон запроса в последовательность конкретных запросов.
//
// Включает:
//   - expand.go     — декартово произведение Params (Expander, Expand)
//   - substitute.go — подстановка значений: токены :name или литеральная замена
//
// Порядок перечисления привязок детерминирован: порядок ключей Params,
// затем порядок значений в каждом списке. Сервер сопоставляет
// результаты с привязками по позиции, поэтому порядок — часть контракта.
package engine
