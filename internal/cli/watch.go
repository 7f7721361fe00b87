package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"costmanager/internal/amqp"
	"costmanager/internal/log"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Month string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print cost events as they are published",
		Long: `Consume cost.created and cost.deleted events from the broker configured by
AMQP_URL and print them until interrupted. The connection is re-established
with exponential backoff when it drops.

With --month the costs of that month are printed at startup and again after
every event.

Example:
  costs watch --month 2025-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Month, "month", "", "month to keep listing, as YYYY-MM")

	return cmd
}

func watch(cmd *cobra.Command, opts *WatchOptions) error {
	var month monthFilter
	if opts.Month != "" {
		t, err := time.Parse("2006-01", opts.Month)
		if err != nil {
			return usageError("invalid --month, want YYYY-MM", err)
		}
		month = monthFilter{month: int(t.Month()), year: t.Year()}
	}

	return opts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
		if rt.Events == nil {
			if rt.eventsErr != nil {
				return rt.eventsErr
			}
			return usageError("watch needs AMQP_URL to be set", nil)
		}
		rt.StartCacheCleanup(time.Minute)

		ctx, stop := GracefulShutdown(cmd.Context(), rt.Logger)
		defer stop()

		if month.set() {
			if err := printMonth(ctx, rt, out, month); err != nil {
				return err
			}
		}

		rt.Logger.Info("Watching cost events", "queue", rt.Config.AMQPQueue)
		err := rt.Events.ConsumeWithRetry(ctx, watchHandler(rt, out, month))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

type monthFilter struct {
	month, year int
}

func (m monthFilter) set() bool { return m.month != 0 }

// watchHandler prints each event, drops the cached queries it affects and,
// when a month is watched, lists that month again.
func watchHandler(rt *Runtime, out *OutputFormatter, month monthFilter) func(context.Context, *amqp.CostEvent) error {
	return func(ctx context.Context, e *amqp.CostEvent) error {
		log.FromContext(ctx).Debug("Cost event received",
			log.FieldEventID, e.EventID,
			log.FieldEventType, e.Type)

		rt.Service.ApplyEvent(e)
		if err := out.Event(e); err != nil {
			return err
		}
		if !month.set() {
			return nil
		}
		return printMonth(ctx, rt, out, month)
	}
}

func printMonth(ctx context.Context, rt *Runtime, out *OutputFormatter, m monthFilter) error {
	costs, err := rt.Service.CostsByMonth(ctx, m.month, m.year)
	if err != nil {
		return err
	}
	return out.Costs(costs)
}
