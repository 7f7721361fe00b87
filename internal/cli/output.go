package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"costmanager/internal/amqp"
	"costmanager/internal/core"
	"costmanager/internal/services"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Storage, broker or other runtime failure
	ExitCommandError = 2 // Invalid arguments, flags or configuration
)

// ExitError carries the exit code a command failure should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// usageError marks err as caused by bad input.
func usageError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Validation failures
// reported by the service count as command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, services.ErrValidation) {
		return ExitCommandError
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope for every command result.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CostList is the payload of the query commands.
type CostList struct {
	Costs []core.Cost     `json:"costs"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func newCostList(costs []core.Cost) CostList {
	total := decimal.Zero
	for _, c := range costs {
		total = total.Add(c.Sum)
	}
	return CostList{Costs: costs, Count: len(costs), Total: total}
}

// Success outputs a message or payload. Text mode prints text; JSON mode
// wraps data in the response envelope.
func (f *OutputFormatter) Success(text string, data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error reports err in JSON mode. In text mode it does nothing and leaves
// the message to the caller of Execute.
func (f *OutputFormatter) Error(err error) error {
	if f.Format != "json" {
		return nil
	}
	return json.NewEncoder(f.Writer).Encode(CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: GetExitCode(err), Message: err.Error()},
	})
}

// Costs prints costs as a table with a total line, or as a CostList.
func (f *OutputFormatter) Costs(costs []core.Cost) error {
	list := newCostList(costs)
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: list})
	}

	if len(costs) == 0 {
		_, err := fmt.Fprintln(f.Writer, "No costs found.")
		return err
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSUM\tCATEGORY\tDESCRIPTION")
	for _, c := range costs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Date, c.Sum.StringFixed(2), c.Category, c.Description)
	}
	fmt.Fprintf(tw, "\t\t%s\t%d costs\t\n", list.Total.StringFixed(2), list.Count)
	return tw.Flush()
}

// Event prints one cost event.
func (f *OutputFormatter) Event(e *amqp.CostEvent) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: e})
	}

	line := fmt.Sprintf("%s %s #%d", e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Type, e.ID)
	if e.Cost != nil {
		line += fmt.Sprintf(" %s %s %s", e.Cost.Date, e.Cost.Sum.StringFixed(2), e.Cost.Category)
	}
	_, err := fmt.Fprintln(f.Writer, line)
	return err
}
