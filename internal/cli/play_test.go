package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filtergraph/internal/config"
)

// writeClip writes a silent 8 kHz mono WAV file of length d.
func writeClip(t *testing.T, dir, name string, d time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	const rate = 8000
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, int(rate*d/time.Second)),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func runPlayCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	cfg := config.Defaults()
	cfg.SchedulerMaxWait = 5 * time.Millisecond

	buf := &bytes.Buffer{}
	cmd := NewPlayCommand(&RootOptions{Format: format, Config: cfg})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestPlayMissingArgs(t *testing.T) {
	_, err := runPlayCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 clip or --ticks")
}

func TestPlayUnreadableClip(t *testing.T) {
	_, err := runPlayCommand(t, "text", filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open clip")
}

func TestPlayCompletes(t *testing.T) {
	dir := t.TempDir()
	a := writeClip(t, dir, "a.wav", 30*time.Millisecond)
	b := writeClip(t, dir, "b.wav", 60*time.Millisecond)

	buf, err := runPlayCommand(t, "text", a, b, "--timeout", "5s")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Played 2 stage(s)")
	assert.Contains(t, out, "a.wav  8000 Hz x1")
	assert.Contains(t, out, "ClockChanged")
	assert.Contains(t, out, "Result: Complete")
}

func TestPlayMetronome(t *testing.T) {
	dir := t.TempDir()
	a := writeClip(t, dir, "a.wav", 20*time.Millisecond)

	buf, err := runPlayCommand(t, "json", a, "--ticks", "3", "--tick-every", "10ms", "--timeout", "5s")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   PlayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Stages, 2)
	assert.Equal(t, "metronome", resp.Data.Stages[1].Name)
	assert.Equal(t, "30ms", resp.Data.Stages[1].Duration)
	assert.Equal(t, "Complete", resp.Data.Completion)

	ticks := 0
	for _, e := range resp.Data.Events {
		if e.Code == "Time" {
			ticks++
		}
	}
	assert.Equal(t, 3, ticks)
}

func TestPlayDuplicateNamesJSON(t *testing.T) {
	dir := t.TempDir()
	clip := writeClip(t, dir, "clip.wav", 20*time.Millisecond)

	buf, err := runPlayCommand(t, "json", clip, clip, "--timeout", "5s")
	require.NoError(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   PlayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "Complete", response.Data.Completion)
	require.Len(t, response.Data.Stages, 2)
	assert.Equal(t, "clip.wav", response.Data.Stages[0].Name)
	assert.Equal(t, "clip.wav#2", response.Data.Stages[1].Name)

	// One graph completion, never one per renderer
	completes := 0
	for _, e := range response.Data.Events {
		if e.Code == "Complete" {
			completes++
		}
	}
	assert.Equal(t, 1, completes)
}

func TestPlayTimeout(t *testing.T) {
	clip := writeClip(t, t.TempDir(), "long.wav", 10*time.Second)

	buf, err := runPlayCommand(t, "text", clip, "--timeout", "50ms")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E_TIMEOUT]")
}

func TestPlayJournalsSession(t *testing.T) {
	dir := t.TempDir()
	clip := writeClip(t, dir, "clip.wav", 20*time.Millisecond)
	dbPath := filepath.Join(dir, "journal.db")

	buf, err := runPlayCommand(t, "json", clip, "--db", dbPath, "--metrics-addr", "127.0.0.1:0", "--timeout", "5s")
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &response))
	require.NotEmpty(t, response.Session)

	traceBuf := &bytes.Buffer{}
	cmd := NewTraceCommand(&RootOptions{Format: "text"})
	cmd.SetOut(traceBuf)
	cmd.SetArgs([]string{"--db", dbPath, "--session", response.Session})
	require.NoError(t, cmd.Execute())

	out := traceBuf.String()
	assert.Contains(t, out, "Stages: 1, renderers: 1")
	assert.Contains(t, out, "STATE running")
	assert.Contains(t, out, "Complete null null")
	assert.Contains(t, out, "STATE stopped")
}

func TestStageName(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "a.wav", stageName("/x/a.wav", used))
	assert.Equal(t, "a.wav#2", stageName("/y/a.wav", used))
	assert.Equal(t, "b.wav", stageName("b.wav", used))
}
