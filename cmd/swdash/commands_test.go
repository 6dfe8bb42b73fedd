package main

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

const validLayout = `
version: "1.0.0"
name: eval
widgets:
  - type: ui:section
    overrides: {id: section-1, title: Metrics}
    children:
      - type: ui:panel:table
        overrides: {id: panel-1, chartTitle: Results}
  - type: ui:panel:retired
    overrides: {id: panel-2}
`

const duplicateLayout = `
version: "1.0.0"
widgets:
  - type: ui:panel:table
    overrides: {id: panel-1}
  - type: ui:panel:table
    overrides: {id: panel-1}
`

// runCmd executes the root command with an isolated config dir.
func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	orig := env
	env = noEnv
	t.Cleanup(func() { env = orig })

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config-dir", t.TempDir(), "--log-level", "error"}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, _, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version, strings.TrimSpace(out))
}

func TestWidgetsCmd_Table(t *testing.T) {
	out, _, err := runCmd(t, "widgets")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "TYPE"))
	assert.Contains(t, out, "ui:dndList")
	assert.Contains(t, out, "ui:panel:confusion_matrix")
}

func TestWidgetsCmd_PanelsJSON(t *testing.T) {
	out, _, err := runCmd(t, "widgets", "--panels", "--json")
	require.NoError(t, err)

	var configs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &configs))
	require.Len(t, configs, 3)
	for _, c := range configs {
		assert.Equal(t, "PANEL", c["group"])
	}
}

func TestWidgetsCmd_Describe(t *testing.T) {
	out, _, err := runCmd(t, "widgets", "--describe", "ui:panel:table")
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "ui:panel:table", cfg["type"])
	assert.Equal(t, "Table", cfg["name"])

	_, stderr, err := runCmd(t, "widgets", "--describe", "ui:panel:nope")
	require.Error(t, err)
	assert.Contains(t, stderr, "not registered")
}

func TestLayoutValidateCmd(t *testing.T) {
	path := writeFile(t, "layout.yaml", validLayout)

	out, _, err := runCmd(t, "layout", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "node panel-2 (ui:panel:retired) will not render")
	assert.Contains(t, out, "layout is valid: 3 node(s)")
}

func TestLayoutValidateCmd_Errors(t *testing.T) {
	path := writeFile(t, "layout.yaml", duplicateLayout)

	out, _, err := runCmd(t, "layout", "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "DUPLICATE_ID")
	assert.Contains(t, out, "error(s)")
}

func TestLayoutValidateCmd_MissingFile(t *testing.T) {
	_, _, err := runCmd(t, "layout", "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLayoutDiagramCmd(t *testing.T) {
	path := writeFile(t, "layout.yaml", validLayout)

	out, _, err := runCmd(t, "layout", "diagram", path)
	require.NoError(t, err)
	assert.Contains(t, out, "=== eval ===")
	assert.Contains(t, out, "section-1 ─→ panel-1")

	out, _, err = runCmd(t, "layout", "diagram", "-f", "mermaid", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD"))
	assert.Contains(t, out, "panel_2{{")

	_, _, err = runCmd(t, "layout", "diagram", "-f", "png", path)
	assert.Error(t, err, "png needs --out")

	_, _, err = runCmd(t, "layout", "diagram", "-f", "svg", path)
	assert.Error(t, err)
}

func TestLayoutDiagramCmd_WritesFile(t *testing.T) {
	path := writeFile(t, "layout.yaml", validLayout)
	target := filepath.Join(t.TempDir(), "tree.mmd")

	out, _, err := runCmd(t, "layout", "diagram", "-f", "mermaid", "-o", target, path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("graph TD")))
}

const sampleRecords = `{"records": [
  {"label": {"type": "STRING", "value": "cat"}, "count": {"type": "INT64", "value": "000000000000000a"}},
  {"label": {"type": "STRING", "value": "dog"}, "count": {"type": "INT64", "value": "0000000000000003"}}
]}`

func TestDecodeCmd(t *testing.T) {
	path := writeFile(t, "records.json", sampleRecords)

	out, _, err := runCmd(t, "decode", path)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "cat", rows[0]["label"])
	assert.EqualValues(t, 10, rows[0]["count"])
	assert.EqualValues(t, 3, rows[1]["count"])
}

func TestDecodeCmd_Types(t *testing.T) {
	path := writeFile(t, "records.json", sampleRecords)

	out, _, err := runCmd(t, "decode", "--types", path)
	require.NoError(t, err)
	assert.Contains(t, out, "record 0")
	assert.Contains(t, out, "record 1")
	assert.Contains(t, out, "int64")
	assert.Contains(t, out, "string")
}

func TestDecodeCmd_BadInput(t *testing.T) {
	path := writeFile(t, "records.json", `{"records": [1]}`)

	_, stderr, err := runCmd(t, "decode", path)
	require.Error(t, err)
	assert.NotEmpty(t, stderr)
}
