// Package cli реализует команды squll.
//
// # Команды
//
//   - run (и корневая команда без аргументов) — цикл воркера: get_work, выполнение, put_work
//   - get — запросить один task и показать его
//   - query --stmt SQL — выполнить запрос локально через настроенный драйвер
//   - put FILE — отправить сохранённое тело put_work
//   - drivers — список бэкендов и алиасов
//   - watch — показывать результаты из зеркала RabbitMQ
//
// Глобальные флаги (Options) переопределяют значения файла конфигурации.
// Учитываются только явно заданные флаги.
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
package cli
