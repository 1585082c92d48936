// Package mq зеркалирует сданные результаты в RabbitMQ.
//
// Зеркало необязательно и работает по принципу best effort: ошибка публикации
// логируется и не влияет на сдачу результата в сервис очереди.
//
// Топология:
//
//	squll.results (topic)
//	└── results.submitted [routing: result.submitted]
//
// Сообщение result.submitted несёт тело put_work и сводку (записей, ошибок).
// Consumer читает очередь для команды watch.
package mq
