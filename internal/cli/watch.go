package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/squll/internal/mq"
	"github.com/shaiso/squll/internal/telemetry"
)

// NewWatchCmd создаёт команду watch: показывать результаты из зеркала RabbitMQ.
func NewWatchCmd(opts *Options, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print result sets mirrored to RabbitMQ as they are submitted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Load(cmd)
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("amqp_url is not configured")
			}
			out := outputFn()
			logger := telemetry.SetupLogger(cfg.Debug)

			conn, err := mq.NewConnection(cfg.AMQPURL, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx := cmd.Context()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				return err
			}

			consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
				Handler: func(_ context.Context, d *mq.Delivery) error {
					return PrintSubmitted(out, &d.Message)
				},
				Logger: logger,
			})

			err = consumer.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// PrintSubmitted выводит одно сообщение result.submitted.
func PrintSubmitted(out *Output, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.ResultSubmittedPayload](msg)
	if err != nil {
		return err
	}

	r := payload.Result
	headers := []string{"TIME", "WORKER", "EXP/TAG/PTAG", "DBMS", "DB", "RECORDS", "ERRORS", "FIRST ERROR"}
	rows := [][]string{{
		msg.Timestamp.Format("15:04:05"),
		payload.WorkerID,
		fmt.Sprintf("%v/%v/%v", valueOrEmpty(r.Exp), valueOrEmpty(r.Tag), valueOrEmpty(r.PTag)),
		r.DBMS,
		r.DB,
		fmt.Sprint(payload.Records),
		fmt.Sprint(payload.Errors),
		r.Error,
	}}
	out.Print(headers, rows, payload)
	return nil
}
