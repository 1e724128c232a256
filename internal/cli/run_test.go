package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelladouceur1/joistor/internal/journal"
)

func executeRun(t *testing.T, format string, args []string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestRunScript(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", goodManifest)
	script := writeFixture(t, "script.yaml", `
steps:
  - set: system.id
    value: 7
  - set: system.name
    value: alpha
  - undo: 2
  - redo: 1
`)

	buf, err := executeRun(t, "json", []string{manifest, script})
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Steps, 4)
	for _, step := range resp.Data.Steps {
		assert.Equal(t, "ok", step.Status, "step %d", step.Seq)
	}
	assert.Contains(t, string(resp.Data.State), `"id":7`)
	assert.Contains(t, string(resp.Data.State), `"name":""`)
	assert.Equal(t, 1, resp.Data.Undo)
	assert.Equal(t, 1, resp.Data.Redo)
}

func TestRunRejectedStep(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", goodManifest)
	script := writeFixture(t, "script.yaml", `
steps:
  - set: system.id
    value: true
`)

	buf, err := executeRun(t, "json", []string{manifest, script})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "rejected")

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Steps, 1)
	assert.Equal(t, "rejected", resp.Data.Steps[0].Status)
	assert.NotEmpty(t, resp.Data.Steps[0].Error)
	// Rejected writes leave the registered default untouched.
	assert.Contains(t, string(resp.Data.State), `"id":0`)
}

func TestRunDeleteStep(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", `
fields:
  - name: system
    schema: "{id: int, tag?: string}"
    default:
      id: 0
`)
	script := writeFixture(t, "script.yaml", `
steps:
  - set: system.tag
    value: x
  - delete: system.tag
`)

	buf, err := executeRun(t, "json", []string{manifest, script})
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Steps, 2)
	assert.Equal(t, "ok", resp.Data.Steps[1].Status)
	assert.NotContains(t, string(resp.Data.State), "tag")
}

func TestRunWithJournal(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", goodManifest)
	script := writeFixture(t, "script.yaml", `
steps:
  - set: system.id
    value: 3
  - undo: 1
`)
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	buf, err := executeRun(t, "json", []string{manifest, script, "--journal", dbPath})
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Session)

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	recs, err := j.Changes(ctx, resp.Data.Session)
	require.NoError(t, err)
	// The undo replay is not journaled, only the forward set.
	require.Len(t, recs, 1)
	assert.Equal(t, "system.id", recs[0].Path)
	assert.Equal(t, "3", recs[0].Value)

	state, _, err := j.LatestSnapshot(ctx, resp.Data.Session)
	require.NoError(t, err)
	assert.Contains(t, state, `"id":0`)
}

func TestRunMissingScript(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", goodManifest)

	_, err := executeRun(t, "text", []string{manifest, "/nonexistent/script.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunInvalidStep(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", goodManifest)
	script := writeFixture(t, "script.yaml", `
steps:
  - set: system.id
    delete: system.name
    value: 1
`)

	_, err := executeRun(t, "text", []string{manifest, script})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E004")
}

func TestRunTextOutput(t *testing.T) {
	manifest := writeFixture(t, "manifest.yaml", goodManifest)
	script := writeFixture(t, "script.yaml", `
steps:
  - set: system.id
    value: 5
`)

	buf, err := executeRun(t, "text", []string{manifest, script})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "set")
	assert.Contains(t, out, "system.id")
	assert.Contains(t, out, `state: {`)
	assert.Contains(t, out, "undo: 1 redo: 0")
}
