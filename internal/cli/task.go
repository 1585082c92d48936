package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/squll/internal/domain"
)

// NewGetCmd создаёт команду get: запросить один task и показать его.
func NewGetCmd(opts *Options, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Fetch one task from the server and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Load(cmd)
			if err != nil {
				return err
			}
			out := outputFn()

			task, err := NewApp(cfg).Client().GetWork(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"EXP", "TAG", "PTAG", "DBMS", "DB", "BINDINGS", "QUERY"}
			rows := [][]string{{
				fmt.Sprint(valueOrEmpty(task.Exp)),
				fmt.Sprint(valueOrEmpty(task.Tag)),
				fmt.Sprint(valueOrEmpty(task.PTag)),
				task.DBMS,
				task.DB,
				fmt.Sprint(task.Params.Combinations()),
				task.Query,
			}}
			out.Print(headers, rows, task)
			return nil
		},
	}
}

// NewQueryCmd создаёт команду query: выполнить запрос локально, без сервера.
func NewQueryCmd(opts *Options, outputFn func() *Output) *cobra.Command {
	var stmt string
	var dbms string
	var db string
	var params string
	var runlength int

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a statement through the configured driver and print the result set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Load(cmd)
			if err != nil {
				return err
			}
			out := outputFn()

			section := cfg.Section()
			task := &domain.Task{
				DBMS:      firstNonEmpty(dbms, section.DBMS),
				DB:        firstNonEmpty(db, section.DB),
				Query:     stmt,
				Runlength: domain.Count(runlength),
			}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &task.Params); err != nil {
					return err
				}
			}

			controller := NewApp(cfg).Controller()
			defer controller.Close()

			results, err := controller.Process(cmd.Context(), task)
			out.Results(results)
			return err
		},
	}

	cmd.Flags().StringVarP(&stmt, "stmt", "s", "", "SQL statement (required)")
	cmd.Flags().StringVar(&dbms, "dbms", "", "Backend (default: from the driver section)")
	cmd.Flags().StringVar(&db, "db", "", "Database (default: from the driver section)")
	cmd.Flags().StringVar(&params, "params", "", `Parameters as JSON, e.g. {"X": [1, 2]}`)
	cmd.Flags().IntVar(&runlength, "runlength", 0, "Runs per binding (default: from the driver section, else 1)")
	cmd.MarkFlagRequired("stmt")

	return cmd
}

// NewPutCmd создаёт команду put: отправить сохранённое тело put_work.
func NewPutCmd(opts *Options, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "put FILE",
		Short: "Submit a previously saved result payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Load(cmd)
			if err != nil {
				return err
			}
			out := outputFn()

			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read result: %w", err)
			}
			if !json.Valid(body) {
				return fmt.Errorf("%s: not a JSON document", args[0])
			}

			if err := NewApp(cfg).Client().PutRaw(cmd.Context(), body); err != nil {
				return err
			}

			out.Success("Result submitted")
			return nil
		},
	}
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
