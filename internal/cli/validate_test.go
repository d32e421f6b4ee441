package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
name: cart-demo
target:
  base_url: http://localhost:8080
observe:
  - system: api
    endpoints:
      cart: /cart
actions:
  - name: add_item
    method: POST
    path: /cart/items
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidConfig(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "probemap.yaml", validConfig)

	out, err := execValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Configuration valid")
}

func TestValidateConfigNotFound(t *testing.T) {
	out, err := execValidate(t, "text", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "config file not found")
}

func TestValidateBrokenConfig(t *testing.T) {
	// Missing name and target.
	path := writeTestFile(t, t.TempDir(), "probemap.yaml", `
observe:
  - system: api
    endpoints:
      cart: /cart
actions:
  - name: add_item
    method: POST
    path: /cart/items
`)

	out, err := execValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "name is required")
}

func TestValidateDimensionSystemCrossCheck(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "schema.cue", `
dimension: balance: {
	system: "ledger"
	path:   "account.balance"
	values: ["zero", "positive"]
}
`)
	path := writeTestFile(t, dir, "probemap.yaml", validConfig+`
dimensions: schema.cue
`)

	out, err := execValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "dimension.balance")
	assert.Contains(t, out, `reads system "ledger", which no observer provides`)
}

func TestValidateEnvDimensionNeedsIdentityKeys(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "schema.cue", `
dimension: user: {
	system: "env"
	path:   "user_id"
	values: ["anonymous", "known"]
}
`)
	path := writeTestFile(t, dir, "probemap.yaml", validConfig+`
dimensions: schema.cue
`)

	out, err := execValidate(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, out, "identity_env_keys is empty")
}

func TestValidateEnvDimensionWithIdentityKeys(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "schema.cue", `
dimension: user: {
	system: "env"
	path:   "user_id"
	values: ["anonymous", "known"]
}
`)
	path := writeTestFile(t, dir, "probemap.yaml", validConfig+`
dimensions: schema.cue
identity_env_keys: [user_id]
`)

	out, err := execValidate(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Configuration valid")
}

func TestValidateBrokenSchema(t *testing.T) {
	dir := t.TempDir()
	// A dimension without a path never compiles.
	writeTestFile(t, dir, "schema.cue", `
dimension: broken: {
	system: "api"
}
`)
	path := writeTestFile(t, dir, "probemap.yaml", validConfig+`
dimensions: schema.cue
`)

	out, err := execValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, "path is required")
}

func TestValidateJSONError(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "probemap.yaml", `
name: demo
target:
  base_url: http://localhost:8080
observe: []
actions: []
`)

	out, err := execValidate(t, "json", path)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["valid"])
}

func TestValidateJSONSuccess(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "probemap.yaml", validConfig)

	out, err := execValidate(t, "json", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["valid"])
}

func TestValidateVerboseLogsSteps(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "probemap.yaml", validConfig)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Validating config")
	assert.Contains(t, buf.String(), "1 action(s), 1 observer(s)")
}
