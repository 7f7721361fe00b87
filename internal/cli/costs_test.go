package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndQuery(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "add", "4,50", "Coffee", "espresso", "--date", "2025-01-05")
	require.NoError(t, err)
	assert.Contains(t, out, "Added cost #1: 2025-01-05 4.50 Coffee")

	_, err = runCLI(t, dir, "add", "20", "Food", "--date", "2025-01-20")
	require.NoError(t, err)
	_, err = runCLI(t, dir, "add", "7.25", "Food", "--date", "2025-02-10")
	require.NoError(t, err)

	out, err = runCLI(t, dir, "month", "1", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-01-05")
	assert.Contains(t, out, "2025-01-20")
	assert.NotContains(t, out, "2025-02-10")
	assert.Contains(t, out, "24.50")

	out, err = runCLI(t, dir, "--format", "json", "year", "2025")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(3), data["count"])
	assert.Equal(t, "31.75", data["total"])

	out, err = runCLI(t, dir, "--format", "json", "recent", "1")
	require.NoError(t, err)
	costs := decodeResponse(t, out).Data.(map[string]any)["costs"].([]any)
	require.Len(t, costs, 1)
	assert.Equal(t, "2025-02-10", costs[0].(map[string]any)["date"])

	out, err = runCLI(t, dir, "--format", "json", "last", "2")
	require.NoError(t, err)
	costs = decodeResponse(t, out).Data.(map[string]any)["costs"].([]any)
	require.Len(t, costs, 2)
	assert.Equal(t, "2025-01-05", costs[0].(map[string]any)["date"])

	out, err = runCLI(t, dir, "category", "Food")
	require.NoError(t, err)
	assert.Contains(t, out, "2 costs")
}

func TestAddRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"negative sum", []string{"add", "--", "-3", "Food"}},
		{"zero sum", []string{"add", "0", "Food"}},
		{"bad date", []string{"add", "3", "Food", "--date", "2025-02-30"}},
		{"blank category", []string{"add", "3", " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, dir, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}

	out, err := runCLI(t, dir, "year", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, "No costs found.")
}

func TestDeleteCommand(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "add", "1", "A", "--date", "2025-03-01")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "delete", "1", "99")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 cost(s).")

	out, err = runCLI(t, dir, "month", "3", "2025")
	require.NoError(t, err)
	assert.Contains(t, out, "No costs found.")

	_, err = runCLI(t, dir, "delete", "abc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQueryArgumentErrors(t *testing.T) {
	dir := t.TempDir()

	for _, args := range [][]string{
		{"month", "x"},
		{"month", "0", "2025"},
		{"year", "0"},
		{"last", "ten"},
	} {
		t.Run(strings.Join(args, "_"), func(t *testing.T) {
			_, err := runCLI(t, dir, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
