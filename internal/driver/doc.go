// Package driver выполняет один запрос против одного бэкенда и измеряет время.
//
// # Контракт
//
// Driver открывает Session; Session.Execute выполняет запрос один раз
// и возвращает Measurement (время в мс, отпечаток результата, составляющие
// времени). Любая ошибка — *BackendError с видом из закрытого набора:
//
//   - ErrConnection — подключение не открылось или разорвано
//   - ErrExecution — запрос завершился ошибкой
//   - ErrTimeout — превышен таймаут выполнения
//   - ErrProtocol — вывод утилиты не разобран (Message содержит сырой вывод)
//
// # Адаптеры
//
// Нативные (одно долгоживущее подключение, время — целые мс до чтения первой строки):
//   - postgresql — pgx/v5
//   - mariadb — go-sql-driver/mysql
//   - sqlite — modernc.org/sqlite
//   - firebird — nakagami/firebirdsql
//   - clickhouse-native — clickhouse-go/v2
//
// CLI (каждый запуск — отдельный процесс с жёстким таймаутом):
//   - monetdb — mclient -tperformance, время из отчёта утилиты
//   - clickhouse — clickhouse client --time, секунды переводятся в мс
//   - actian — терминальный монитор sql, запрос на stdin
//   - JDBC-профили (apache derby, apache hive, h2, hsqldb, monetdblite-java)
//
// Шаблон команды разбивается на argv по правилам shell (go-shellquote)
// до подстановки запроса, поэтому текст запроса не интерпретируется shell.
//
// # Pool
//
// Pool держит одну сессию и переиспользует её, пока не сменились
// адаптер или база.
package driver
