package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/filtergraph/internal/config"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - list sessions when empty
}

// TraceEntry is one journaled event or transition in the timeline.
type TraceEntry struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"` // "event" or "transition"
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

// TraceResult holds one session's journal.
type TraceResult struct {
	Session  store.Session `json:"session"`
	Timeline []TraceEntry  `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for a session.
type TraceStats struct {
	Events      int  `json:"events"`
	Transitions int  `json:"transitions"`
	Completions int  `json:"completions"`
	Aborted     bool `json:"aborted"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled graph sessions",
		Long: `Show what a journaled graph did.

Without --session, lists every session in the database with its stage and
renderer counts. With --session, prints that session's events and state
transitions in the order they happened.

Examples:
  filtergraph trace --db ./filtergraph.db
  filtergraph trace --db ./filtergraph.db --session 0190f3a2-...
  filtergraph trace --db ./filtergraph.db --session 0190f3a2-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to print")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := NewOutputFormatter(cmd, opts.RootOptions)

	st, err := openJournal(opts.Database, opts.Config, slog.Default())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		return listSessions(ctx, st, out)
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	result, err := buildTrace(ctx, st, sess)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	if opts.Format == "json" {
		return out.JSON(CLIResponse{Status: "ok", Data: result, Session: sess.ID})
	}
	return outputTraceText(out.Writer, result)
}

func listSessions(ctx context.Context, st *store.Store, out *OutputFormatter) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	if out.Format == "json" {
		return out.Success(sessions)
	}

	w := out.Writer
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %-24s stages=%d renderers=%d\n", s.ID, s.Name, s.Stages, s.Renderers)
	}
	return nil
}

// buildTrace reads a session's merged timeline and summarizes it.
func buildTrace(ctx context.Context, st *store.Store, sess store.Session) (TraceResult, error) {
	entries, err := st.ReadTrace(ctx, sess.ID)
	if err != nil {
		return TraceResult{}, err
	}
	completions, err := st.CountEvents(ctx, sess.ID, events.Complete)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Session:  sess,
		Timeline: make([]TraceEntry, 0, len(entries)),
		Stats:    TraceStats{Completions: completions},
	}
	for _, e := range entries {
		te := TraceEntry{Seq: e.Seq, Kind: string(e.Kind), Detail: e.Detail}
		switch e.Kind {
		case store.TraceEvent:
			te.Code = e.Code.String()
			result.Stats.Events++
			if e.Code == events.ErrorAbort || e.Code == events.UserAbort {
				result.Stats.Aborted = true
			}
		case store.TraceTransition:
			result.Stats.Transitions++
		}
		result.Timeline = append(result.Timeline, te)
	}
	return result, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Session: %s (%s)\n", result.Session.ID, result.Session.Name)
	fmt.Fprintf(w, "Stages: %d, renderers: %d\n", result.Session.Stages, result.Session.Renderers)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		tag := "EVT"
		if e.Kind == string(store.TraceTransition) {
			tag = "STATE"
		}
		fmt.Fprintf(w, "  [%d] %-5s %s\n", e.Seq, tag, e.Detail)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Events:      %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Transitions: %d\n", result.Stats.Transitions)
	fmt.Fprintf(w, "  Completions: %d\n", result.Stats.Completions)
	if result.Stats.Aborted {
		fmt.Fprintln(w, "  Aborted:     yes")
	}
	return nil
}

// openJournal opens the journal with the configured durability settings.
// Unset settings keep the store defaults.
func openJournal(path string, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	opts := []store.Option{store.WithLogger(logger)}
	if cfg.JournalSync != "" {
		opts = append(opts, store.WithSynchronous(cfg.JournalSync))
	}
	if cfg.JournalBusy > 0 {
		opts = append(opts, store.WithBusyTimeout(cfg.JournalBusy))
	}
	return store.Open(path, opts...)
}
