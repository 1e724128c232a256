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

func seedJournal(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	session, err := j.BeginSession(ctx)
	require.NoError(t, err)
	require.NoError(t, j.RecordChange(ctx, journal.ChangeRecord{
		SessionID: session, Seq: 1, Field: "system", Path: "system.id", Value: "7",
	}))
	return path, session
}

func executeHistory(t *testing.T, format string, args []string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewHistoryCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestHistoryListsSessions(t *testing.T) {
	path, session := seedJournal(t)

	buf, err := executeHistory(t, "text", []string{"--journal", path})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), session)
}

func TestHistoryListsChanges(t *testing.T) {
	path, session := seedJournal(t)

	buf, err := executeHistory(t, "text", []string{"--journal", path, "--session", session})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "system.id")
	assert.Contains(t, out, "7")
}

func TestHistoryChangesJSON(t *testing.T) {
	path, session := seedJournal(t)

	buf, err := executeHistory(t, "json", []string{"--journal", path, "--session", session})
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   SessionChanges `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Changes, 1)
	assert.Equal(t, "system.id", resp.Data.Changes[0].Path)
}

func TestHistoryUnknownSession(t *testing.T) {
	path, _ := seedJournal(t)

	buf, err := executeHistory(t, "text", []string{"--journal", path, "--session", "no-such-session"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "no changes")
}

func TestHistoryNonExistentJournal(t *testing.T) {
	buf, err := executeHistory(t, "text", []string{"--journal", "/nonexistent/journal.db"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005")
	assert.Contains(t, buf.String(), "not found")
}
