package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filtergraph/internal/config"
	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/store"
)

// seedJournal writes one session with a run that completed and one that
// aborted.
func seedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.CreateSession(ctx, store.Session{ID: "s-1", Name: "play a.wav"}))
	require.NoError(t, st.UpdateSessionShape(ctx, "s-1", 2, 1))
	require.NoError(t, st.WriteTransition(ctx, "s-1", store.TransitionEntry{Seq: 1, Target: "paused"}))
	require.NoError(t, st.WriteTransition(ctx, "s-1", store.TransitionEntry{Seq: 2, Target: "running"}))
	require.NoError(t, st.WriteEvent(ctx, "s-1", store.EventEntry{
		Seq: 3, Code: events.Complete, Name: "Complete", Param1: "null", Param2: "null",
	}))
	require.NoError(t, st.WriteTransition(ctx, "s-1", store.TransitionEntry{
		Seq: 4, Target: "stopped", Error: "stage a.wav: boom",
	}))

	require.NoError(t, st.CreateSession(ctx, store.Session{ID: "s-2", Name: "aborted"}))
	require.NoError(t, st.WriteEvent(ctx, "s-2", store.EventEntry{
		Seq: 1, Code: events.ErrorAbort, Name: "ErrorAbort", Param1: `"decoder"`, Param2: "null",
	}))
	return dbPath
}

func runTraceCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := runTraceCommand(t, "text", "--session", "s-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceNonExistentDatabase(t *testing.T) {
	_, err := runTraceCommand(t, "text", "--db", "/nonexistent/path/test.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceListEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf, err := runTraceCommand(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No sessions recorded.")
}

func TestTraceListSessions(t *testing.T) {
	dbPath := seedJournal(t)

	buf, err := runTraceCommand(t, "text", "--db", dbPath)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "s-1")
	assert.Contains(t, out, "stages=2 renderers=1")
	assert.Contains(t, out, "s-2")
}

func TestTraceListSessionsJSON(t *testing.T) {
	dbPath := seedJournal(t)

	buf, err := runTraceCommand(t, "json", "--db", dbPath)
	require.NoError(t, err)

	var response struct {
		Status string          `json:"status"`
		Data   []store.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	require.Len(t, response.Data, 2)
	assert.Equal(t, "s-1", response.Data[0].ID)
}

func TestTraceUnknownSession(t *testing.T) {
	dbPath := seedJournal(t)

	_, err := runTraceCommand(t, "text", "--db", dbPath, "--session", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found: nope")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceSession(t *testing.T) {
	dbPath := seedJournal(t)

	buf, err := runTraceCommand(t, "text", "--db", dbPath, "--session", "s-1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Session: s-1 (play a.wav)")
	assert.Contains(t, out, "[1] STATE paused")
	assert.Contains(t, out, "[3] EVT   Complete null null")
	assert.Contains(t, out, "[4] STATE stopped ! stage a.wav: boom")
	assert.Contains(t, out, "Completions: 1")
	assert.NotContains(t, out, "Aborted")
}

func TestTraceSessionJSON(t *testing.T) {
	dbPath := seedJournal(t)

	buf, err := runTraceCommand(t, "json", "--db", dbPath, "--session", "s-2")
	require.NoError(t, err)

	var response struct {
		Status  string      `json:"status"`
		Session string      `json:"session"`
		Data    TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "s-2", response.Session)
	require.Len(t, response.Data.Timeline, 1)
	assert.Equal(t, "ErrorAbort", response.Data.Timeline[0].Code)
	assert.Equal(t, `ErrorAbort "decoder" null`, response.Data.Timeline[0].Detail)
	assert.True(t, response.Data.Stats.Aborted)
	assert.Zero(t, response.Data.Stats.Completions)
}

func TestTraceHelpText(t *testing.T) {
	buf, err := runTraceCommand(t, "text", "--help")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "--session")
	assert.Contains(t, buf.String(), "--db")
}

func TestOpenJournal_UsesConfig(t *testing.T) {
	dir := t.TempDir()

	st, err := openJournal(filepath.Join(dir, "zero.db"), config.Config{}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg := config.Defaults()
	cfg.JournalSync = "full"
	cfg.JournalBusy = 250 * time.Millisecond
	st, err = openJournal(filepath.Join(dir, "full.db"), cfg, slog.Default())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg.JournalSync = "sometimes"
	_, err = openJournal(filepath.Join(dir, "bad.db"), cfg, slog.Default())
	assert.True(t, errs.IsInvalidArgument(err))
}
