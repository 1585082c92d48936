package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/squll/internal/driver"
)

// driverInfo — строка вывода drivers --json.
type driverInfo struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// NewDriversCmd создаёт команду drivers: список поддерживаемых бэкендов.
// Конфигурация не нужна.
func NewDriversCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List supported backends and their aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			PrintDrivers(outputFn(), driver.NewRegistry())
			return nil
		},
	}
}

// PrintDrivers выводит реестр адаптеров.
func PrintDrivers(out *Output, registry *driver.Registry) {
	names := registry.Names()

	infos := make([]driverInfo, len(names))
	rows := make([][]string, len(names))
	for i, name := range names {
		aliases := registry.Aliases(name)
		if aliases == nil {
			aliases = []string{}
		}
		infos[i] = driverInfo{Name: name, Aliases: aliases}
		rows[i] = []string{name, strings.Join(aliases, ", ")}
	}

	out.Print([]string{"DBMS", "ALIASES"}, rows, infos)
}
