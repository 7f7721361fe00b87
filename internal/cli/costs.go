package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"costmanager/internal/core"
	"costmanager/internal/storage"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Date string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <sum> <category> [description]",
		Short: "Record a cost",
		Long: `Record a cost. The sum accepts a comma or a dot as decimal separator
and is rounded to cents.

Example:
  costs add 12,50 Food "lunch" --date 2025-01-05`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return addCost(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "date of the cost as YYYY-MM-DD (default today)")

	return cmd
}

func addCost(cmd *cobra.Command, opts *AddOptions, args []string) error {
	return opts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
		sum, err := core.ParseAmount(args[0])
		if err != nil {
			return usageError("invalid sum", err)
		}

		date := today()
		if opts.Date != "" {
			if date, err = core.ParseDate(opts.Date); err != nil {
				return usageError("invalid --date", err)
			}
		}

		c := core.NewCost{
			Sum:      sum,
			Category: strings.TrimSpace(args[1]),
			Date:     date,
		}
		if len(args) == 3 {
			c.Description = strings.TrimSpace(args[2])
		}

		saved, err := rt.Service.AddCost(cmd.Context(), c)
		if err != nil {
			return err
		}

		return out.Success(fmt.Sprintf("Added cost #%d: %s %s %s", saved.ID, saved.Date, saved.Sum.StringFixed(2), saved.Category), saved)
	})
}

// NewMonthCommand creates the month command.
func NewMonthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "month <month> [year]",
		Short: "List the costs of a month",
		Long:  "List the costs of a month (1-12), oldest first. The year defaults to the current one.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				month, err := parseIntArg("month", args[0])
				if err != nil {
					return err
				}
				year := today().Year()
				if len(args) == 2 {
					if year, err = parseIntArg("year", args[1]); err != nil {
						return err
					}
				}

				costs, err := rt.Service.CostsByMonth(cmd.Context(), month, year)
				if err != nil {
					return err
				}
				return out.Costs(costs)
			})
		},
	}
}

// NewYearCommand creates the year command.
func NewYearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "year [year]",
		Short: "List the costs of a year",
		Long:  "List the costs of a year, oldest first. The year defaults to the current one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				year := today().Year()
				if len(args) == 1 {
					var err error
					if year, err = parseIntArg("year", args[0]); err != nil {
						return err
					}
				}

				costs, err := rt.Service.CostsByYear(cmd.Context(), year)
				if err != nil {
					return err
				}
				return out.Costs(costs)
			})
		},
	}
}

// NewLastCommand creates the last command.
func NewLastCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last [n]",
		Short: "List the first n costs by date",
		Long: fmt.Sprintf(`List the n earliest costs in ascending date order (default %d).
Use "recent" for the newest ones.`, storage.DefaultLastN),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				n, err := optionalCount(args)
				if err != nil {
					return err
				}
				costs, err := rt.Service.LastN(cmd.Context(), n)
				if err != nil {
					return err
				}
				return out.Costs(costs)
			})
		},
	}
}

// NewRecentCommand creates the recent command.
func NewRecentCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recent [n]",
		Short: "List the newest n costs",
		Long:  fmt.Sprintf("List the n newest costs, newest first (default %d).", storage.DefaultLastN),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				n, err := optionalCount(args)
				if err != nil {
					return err
				}
				costs, err := rt.Service.Recent(cmd.Context(), n)
				if err != nil {
					return err
				}
				return out.Costs(costs)
			})
		},
	}
}

// NewCategoryCommand creates the category command.
func NewCategoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "category <name>",
		Short: "List the costs filed under a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				costs, err := rt.Service.ByCategory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return out.Costs(costs)
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete costs by id",
		Long:  "Delete costs by id. Deleting an id that does not exist succeeds.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRuntime(cmd, func(rt *Runtime, out *OutputFormatter) error {
				ids := make([]int64, 0, len(args))
				for _, arg := range args {
					id, err := strconv.ParseInt(arg, 10, 64)
					if err != nil {
						return usageError(fmt.Sprintf("invalid id %q", arg), err)
					}
					ids = append(ids, id)
				}

				for _, id := range ids {
					if err := rt.Service.DeleteCost(cmd.Context(), id); err != nil {
						return err
					}
				}
				return out.Success(fmt.Sprintf("Deleted %d cost(s).", len(ids)), map[string]any{"deleted": ids})
			})
		},
	}
}

func parseIntArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, usageError(fmt.Sprintf("invalid %s %q", name, value), err)
	}
	return n, nil
}

// optionalCount parses the [n] argument; 0 selects the store default.
func optionalCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	return parseIntArg("count", args[0])
}

func today() core.Date {
	now := time.Now()
	return core.NewDate(now.Year(), int(now.Month()), now.Day())
}
