package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd("1.2.3")
	root.SetArgs([]string{"version"})
	assert.NoError(t, root.Execute())
}

func TestRun_RefusesWithoutCredential(t *testing.T) {
	t.Setenv("ALERTRELAY_JIRA_USER", "")
	t.Setenv("ALERTRELAY_JIRA_PASSWORD", "")

	dbPath := filepath.Join(t.TempDir(), "alerts.db")
	t.Setenv("ALERTRELAY_STORE_BACKEND", "sqlite")
	t.Setenv("ALERTRELAY_STORE_SQLITE_PATH", dbPath)

	root := NewRootCmd("test")
	root.SetArgs([]string{"run"})

	// Missing credential is a clean no-op exit, not an error
	require.NoError(t, root.Execute())

	// The gate fires before the store is even opened
	_, err := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_EmptyStoreCompletes(t *testing.T) {
	t.Setenv("ALERTRELAY_JIRA_USER", "svc-alertrelay")
	t.Setenv("ALERTRELAY_JIRA_PASSWORD", "hunter2")

	dbPath := filepath.Join(t.TempDir(), "alerts.db")
	t.Setenv("ALERTRELAY_STORE_BACKEND", "sqlite")
	t.Setenv("ALERTRELAY_STORE_SQLITE_PATH", dbPath)

	root := NewRootCmd("test")
	root.SetArgs([]string{"run"})

	require.NoError(t, root.Execute())

	// Store was opened and bootstrapped
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
