package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommand_Help(t *testing.T) {
	tests := []struct {
		args           []string
		expectedOutput string
	}{
		{[]string{"migrate", "--help"}, "Manage the database schema"},
		{[]string{"migrate", "up", "--help"}, "Apply all pending database migrations"},
		{[]string{"migrate", "status", "--help"}, "Display the current status"},
	}

	for _, tt := range tests {
		t.Run(tt.args[len(tt.args)-2], func(t *testing.T) {
			out, err := executeCommand(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.expectedOutput)
		})
	}
}

func TestMigrateCommandSubcommands(t *testing.T) {
	migrate, _, err := NewRootCmd().Find([]string{"migrate"})
	require.NoError(t, err)

	var names []string
	for _, child := range migrate.Commands() {
		names = append(names, child.Name())
	}
	assert.ElementsMatch(t, []string{"up", "status"}, names)
}

func TestMigrateUpAndStatus(t *testing.T) {
	isolateConfig(t)

	out, err := executeCommand(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "classification_feedback")

	out, err = executeCommand(t, "migrate", "up", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would create")

	out, err = executeCommand(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema up to date")

	out, err = executeCommand(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
	assert.NotContains(t, out, "pending")
}
