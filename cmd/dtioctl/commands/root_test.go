package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand_ShowsHelpWhenNoSubcommand tests that the root command
// shows help instead of silently succeeding when invoked without a subcommand
func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	output, err := executeCommand(t)

	assert.NoError(t, err)
	assert.Contains(t, output, "Usage:", "Help should be displayed")
	assert.Contains(t, output, "dtioctl", "Help should show command name")
}

// TestRootCommand_RejectsUnknownFlags tests that unknown flags
// cause an error instead of being silently ignored
func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := executeCommand(t, "--unknown-flag", "value")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

// TestRootCommand_RejectsSubcommandFlags tests that flags meant for
// subcommands (like --redis-url) are rejected when passed to the root command
func TestRootCommand_RejectsSubcommandFlags(t *testing.T) {
	_, err := executeCommand(t, "--redis-url", "redis://localhost:6379")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag: --redis-url")
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "options", "compile", "env", "run", "history", "watch"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestSetVersionInfo(t *testing.T) {
	old := rootCmd.Version
	defer func() { rootCmd.Version = old }()

	SetVersionInfo("1.2.3", "abc123", "2025-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2025-01-01)", rootCmd.Version)
}
