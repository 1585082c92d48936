package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/squll/internal/config"
)

// Options — значения глобальных флагов.
type Options struct {
	ConfigPath string
	Driver     string
	Server     string
	Ticket     string
	Timeout    int
	Bailout    int
	Daemon     bool
	Debug      bool
	Input      string
	Output     string
	JSON       bool
}

// Register объявляет глобальные флаги на корневой команде.
func (o *Options) Register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.ConfigPath, "config", "c", config.DefaultPath, "Configuration file")
	f.StringVarP(&o.Driver, "driver", "d", "", "Section of the drivers map to use")
	f.StringVar(&o.Server, "server", "", "Work-queue server URL")
	f.StringVar(&o.Ticket, "ticket", "", "Experiment ticket")
	f.IntVar(&o.Timeout, "timeout", 0, "Per-query timeout in seconds (0 = none)")
	f.IntVar(&o.Bailout, "bailout", 0, "Errors tolerated before the worker stops (0 = unlimited)")
	f.BoolVar(&o.Daemon, "daemon", false, "Keep polling when the server is out of work")
	f.BoolVar(&o.Debug, "debug", false, "Debug logging")
	f.StringVar(&o.Input, "input", "", "Read tasks from a JSON file instead of the server")
	f.StringVar(&o.Output, "output", "", "Write batch results to this file (default: stdout)")
	f.BoolVar(&o.JSON, "json", false, "Output in JSON format")
}

// Overrides переводит явно заданные флаги в config.Overrides.
func (o *Options) Overrides(cmd *cobra.Command) config.Overrides {
	flags := cmd.Flags()
	ov := config.Overrides{Driver: o.Driver}

	if flags.Changed("server") {
		ov.Server = &o.Server
	}
	if flags.Changed("ticket") {
		ov.Ticket = &o.Ticket
	}
	if flags.Changed("timeout") {
		ov.Timeout = &o.Timeout
	}
	if flags.Changed("bailout") {
		ov.Bailout = &o.Bailout
	}
	if flags.Changed("daemon") {
		ov.Daemon = &o.Daemon
	}
	if flags.Changed("debug") {
		ov.Debug = &o.Debug
	}
	if flags.Changed("input") {
		ov.Input = &o.Input
	}
	if flags.Changed("output") {
		ov.Output = &o.Output
	}
	return ov
}

// Load читает конфигурацию с учётом флагов.
func (o *Options) Load(cmd *cobra.Command) (config.Config, error) {
	return config.Load(o.ConfigPath, o.Overrides(cmd))
}
