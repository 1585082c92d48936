// Squll — воркер нагрузочного тестирования СУБД для сервиса очереди sqalpel.
//
// Использование:
//
//	squll [--config squll.yaml] [--driver NAME] [flags] [command]
//
// Команды:
//
//	run       Цикл воркера (по умолчанию)
//	get       Запросить один task
//	query     Выполнить запрос локально
//	put       Отправить сохранённый результат
//	drivers   Список бэкендов
//	watch     Показывать зеркалированные результаты
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/squll/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
