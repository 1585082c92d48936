// Package queue — клиент сервиса очереди работы.
//
// Client ходит на GET /get_work (JSON-тело с идентичностью воркера)
// и POST /put_work (Result Set вместе с полями task и хоста).
// FileSource — пакетный режим без сервера: task из файла, результаты в JSON lines.
//
// Доставка результата at-most-once: после исчерпания попыток put_work
// результат теряется, локальной очереди нет.
package queue
