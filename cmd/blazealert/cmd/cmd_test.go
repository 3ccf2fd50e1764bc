package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/blazealert/internal/alerting"
)

const testDefinitions = `
projects:
  - {id: checkout, name: Checkout}
channels:
  - id: ops-hook
    project: checkout
    provider: webhook
    config: {url: "https://hooks.example.com/alerts"}
alerts:
  - id: checkout-errors
    project: checkout
    name: Checkout error rate
    metric: error_rate
    threshold: 5
    severity: high
    channels: [ops-hook]
`

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, dbPath, verbose, output = "", "", false, "table"
	testChannelFile, historyAlertID, historyLimit, historyOffset = "", "", 20, 0
	channelsProject = ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "alerts.yaml")
	require.NoError(t, os.WriteFile(good, []byte(testDefinitions), 0o644))

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "OK (1 project(s), 1 channel(s), 1 alert(s))")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("alerts:\n  - {id: a, project: nope, name: A, metric: error_rate, severity: low}\n"), 0o644))
	_, err = execute(t, "validate", bad)
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "data", "blazealert.db")

	_, err := execute(t, "history", "--db", db)
	assert.ErrorContains(t, err, "--alert is required")

	_, err = execute(t, "history", "--db", db, "--alert", "ghost")
	assert.ErrorContains(t, err, "not found")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "blazealert dev")

	out, err = execute(t, "version", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "dev"`)
}

func TestTestChannelCommand_JSON(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "alerts.yaml")
	defs := strings.Replace(testDefinitions, "https://hooks.example.com/alerts", srv.URL, 1)
	require.NoError(t, os.WriteFile(file, []byte(defs), 0o644))

	out, err := execute(t, "test-channel", "ops-hook", "--file", file, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	var res struct {
		Success  bool   `json:"success"`
		Provider string `json:"provider"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "webhook", res.Provider)

	_, err = execute(t, "test-channel", "missing", "--file", file)
	assert.ErrorContains(t, err, "not found")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"total": 2}))
	assert.JSONEq(t, `{"total": 2}`, buf.String())

	err := printJSON(&buf, map[string]any{"bad": make(chan int)})
	assert.ErrorContains(t, err, "encode output")
}

func TestChannelsCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "data", "blazealert.db")
	cfg := DefaultConfig()
	cfg.Database.Path = db
	registry, err := buildRegistry(cfg)
	require.NoError(t, err)

	store, err := openStore(cfg)
	require.NoError(t, err)
	defs, err := alerting.LoadDefinitionsFromBytes([]byte(testDefinitions), registry)
	require.NoError(t, err)
	require.NoError(t, defs.Apply(context.Background(), store))
	require.NoError(t, store.Close())

	out, err := execute(t, "channels", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ops-hook")
	assert.Contains(t, out, "webhook")
	assert.NotContains(t, out, "hooks.example.com")

	out, err = execute(t, "channels", "--db", db, "--project", "checkout", "-o", "json")
	require.NoError(t, err)
	var listed struct {
		Channels []struct {
			ID      string `json:"id"`
			Enabled bool   `json:"enabled"`
		} `json:"channels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Channels, 1)
	assert.Equal(t, "ops-hook", listed.Channels[0].ID)
	assert.True(t, listed.Channels[0].Enabled)

	_, err = execute(t, "channels", "--db", db, "--project", "ghost")
	assert.ErrorContains(t, err, "get project")
}
