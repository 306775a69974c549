package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/keepmind9/relaybot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
connections:
  - id: lan
    type: line
    address: "127.0.0.1:7000"
plugins: [greet, relay]
storage:
  path: /tmp/relaybot-test.db
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateFile(t *testing.T) {
	catalog, err := newCatalog()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		result, cfg := validateFile(writeFile(t, validConfig), catalog)
		require.NotNil(t, cfg)
		assert.True(t, result.Valid)
		assert.Equal(t, 1, result.Connections)
		assert.Equal(t, 2, result.Plugins)
		assert.Empty(t, result.Errors)
		assert.Empty(t, result.Warnings)
	})

	t.Run("unknown plugin", func(t *testing.T) {
		result, cfg := validateFile(writeFile(t, `
connections:
  - {id: lan, type: line, address: "127.0.0.1:7000"}
plugins: [greet, nosuch]
`), catalog)
		require.NotNil(t, cfg)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], `unknown plugin "nosuch"`)
	})

	t.Run("broken", func(t *testing.T) {
		result, cfg := validateFile(writeFile(t, "connections: []\n"), catalog)
		assert.Nil(t, cfg)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "at least one connection")
	})
}

func TestValidateConfigDetails(t *testing.T) {
	cfg := &core.Config{
		HookServer:  core.HookServerConfig{Enabled: true, Host: "0.0.0.0"},
		WatchConfig: true,
		Connections: []core.ConnectionConfig{
			{ID: "lan", Type: core.TypeLine},
			{ID: "dc", Type: core.TypeDiscord},
			{ID: "tg", Type: core.TypeTelegram, ChannelID: "42"},
		},
	}

	warnings := validateConfigDetails(cfg)
	require.Len(t, warnings, 5)
	assert.Contains(t, warnings[0], "No plugins configured")
	assert.Contains(t, warnings[1], "No storage path")
	assert.Contains(t, warnings[2], "0.0.0.0")
	assert.Contains(t, warnings[3], "watch_config")
	assert.Contains(t, warnings[4], "'dc'")
}

func TestOutputValidationResult(t *testing.T) {
	valid := ValidationResult{Valid: true, Config: "a.yaml", Connections: 2, Plugins: 3, Warnings: []string{"careful"}}
	invalid := ValidationResult{Valid: false, Config: "b.yaml", Errors: []string{"error 1", "error 2"}}

	var out bytes.Buffer
	outputValidationResult(&out, valid, false)
	assert.Contains(t, out.String(), "✓ Configuration is valid")
	assert.Contains(t, out.String(), "Connections: 2")
	assert.Contains(t, out.String(), "careful")

	out.Reset()
	outputValidationResult(&out, invalid, false)
	assert.Contains(t, out.String(), "❌ Configuration validation failed:")
	assert.Contains(t, out.String(), "error 2")

	out.Reset()
	outputValidationResult(&out, invalid, true)
	var decoded ValidationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, invalid, decoded)
}

func TestValidateCommand(t *testing.T) {
	defer func() {
		validateConfig, validateShow, validateJSON = "", false, false
	}()

	out, err := execute(t, "validate", "--config", writeFile(t, validConfig), "--show")
	require.NoError(t, err)
	assert.Contains(t, out, "Connections (1):")
	assert.Contains(t, out, "lan: line @ 127.0.0.1:7000 (nick: relaybot)")
	assert.Contains(t, out, "✓ Configuration is valid")

	validateShow = false
	out, err = execute(t, "validate", "--config", writeFile(t, "plugins: [x]\n"), "--json")
	assert.Error(t, err)
	assert.Contains(t, out, `"valid":false`)
}
