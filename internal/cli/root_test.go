package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the command tree against a database in dir and returns
// stdout.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db-dir", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "costs", cmd.Use)
	assert.Contains(t, cmd.Long, "CostManagerDB")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"add", "month", "year", "last", "recent", "category", "delete", "import", "watch", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbDirFlag := cmd.PersistentFlags().Lookup("db-dir")
	require.NotNil(t, dbDirFlag)
	assert.Equal(t, "", dbDirFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "--format", "xml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidConfiguration(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := runCLI(t, file, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVersionCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "CostManagerDB schema version 1")
	assert.FileExists(t, filepath.Join(dir, "CostManagerDB.sqlite"))

	out, err = runCLI(t, dir, "--format", "json", "version")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["schema_version"])
}

func TestWatchRequiresBroker(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AMQP_URL")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestJSONErrorResponse(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "--format", "json", "month", "13", "2025")
	require.Error(t, err)

	resp := decodeResponse(t, strings.TrimSpace(out))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ExitCommandError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "month")
}
