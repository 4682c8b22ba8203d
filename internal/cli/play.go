package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/metrics"
	"github.com/roach88/filtergraph/internal/refclock"
	"github.com/roach88/filtergraph/internal/stage"
	"github.com/roach88/filtergraph/internal/store"
)

// metronomeStage names the renderer added by --ticks.
const metronomeStage = "metronome"

// completionSlice bounds each completion wait so an interrupt is noticed.
const completionSlice = 100 * time.Millisecond

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Database    string
	MetricsAddr string
	Timeout     time.Duration
	Ticks       int
	TickEvery   time.Duration
}

// PlayStage describes one clip in the graph.
type PlayStage struct {
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Duration   string `json:"duration"`
}

// PlayEvent is one event drained from the graph.
type PlayEvent struct {
	Code   string `json:"code"`
	Param1 string `json:"param1,omitempty"`
	Param2 string `json:"param2,omitempty"`
}

// PlayResult holds the outcome of a playback.
type PlayResult struct {
	Stages     []PlayStage `json:"stages"`
	Completion string      `json:"completion"`
	Events     []PlayEvent `json:"events"`
	Elapsed    string      `json:"elapsed"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <wav>...",
		Short: "Play WAV files through a graph",
		Long: `Build a graph with one renderer per WAV file, run it on the system
reference clock and wait until every renderer has reached end of stream.

Every event the graph queues is printed. With --db the session is journaled
and can be inspected with 'filtergraph trace'. With --metrics-addr the
engine's Prometheus metrics are served at /metrics for the duration of the
playback. With --ticks a metronome renderer joins the graph and reports a
Time event for every tick it renders.

Exit codes:
  0 - Every renderer completed
  1 - Timeout, abort or interrupt before completion
  2 - Command error (unreadable file, database not found, etc.)

Examples:
  filtergraph play intro.wav
  filtergraph play left.wav right.wav --timeout 10s
  filtergraph play intro.wav --db ./filtergraph.db --metrics-addr :9090
  filtergraph play --ticks 4 --tick-every 250ms`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.Ticks <= 0 {
				return fmt.Errorf("requires at least 1 clip or --ticks")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the session to this SQLite database")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up after this long (default from config)")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 0, "add a metronome renderer that completes after this many ticks")
	cmd.Flags().DurationVar(&opts.TickEvery, "tick-every", 100*time.Millisecond, "metronome tick interval")

	return cmd
}

func runPlay(opts *PlayOptions, paths []string, cmd *cobra.Command) error {
	cfg := opts.Config
	if opts.Database == "" {
		opts.Database = cfg.Database
	}
	if opts.MetricsAddr == "" {
		opts.MetricsAddr = cfg.MetricsAddr
	}
	if opts.Timeout <= 0 {
		opts.Timeout = cfg.EventTimeout
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt)
	defer stop()

	out := NewOutputFormatter(cmd, opts.RootOptions)
	logger := slog.Default()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	g := graph.New(
		graph.WithLogger(logger),
		graph.WithMetrics(m),
		graph.WithPollInterval(cfg.PollInterval),
		graph.WithQueueGrowth(cfg.QueueGrowth),
	)
	defer g.Close()

	result := PlayResult{Stages: make([]PlayStage, 0, len(paths))}
	used := make(map[string]int, len(paths))
	for _, path := range paths {
		r, err := stage.NewWavRenderer(path, stage.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open clip", err)
		}
		name := stageName(path, used)
		if err := g.AddStage(name, r, graph.AsRenderer()); err != nil {
			return WrapExitError(ExitCommandError, "failed to add stage", err)
		}
		info := r.Info()
		result.Stages = append(result.Stages, PlayStage{
			Name:       name,
			Path:       path,
			SampleRate: info.Format.SampleRate,
			Channels:   info.Format.NumChannels,
			Duration:   info.Duration.String(),
		})
		out.VerboseLog("added %s (%s)", name, info.Duration)
	}
	if opts.Ticks > 0 {
		ticker, err := stage.NewTickRenderer(metronomeStage, refclock.FromDuration(opts.TickEvery), opts.Ticks,
			stage.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid metronome", err)
		}
		ticker.NotifyTicks(true)
		if err := g.AddStage(metronomeStage, ticker, graph.AsRenderer()); err != nil {
			return WrapExitError(ExitCommandError, "failed to add stage", err)
		}
		result.Stages = append(result.Stages, PlayStage{
			Name:     metronomeStage,
			Duration: (time.Duration(opts.Ticks) * opts.TickEvery).String(),
		})
	}

	if err := g.SetDefaultSyncSource(
		refclock.WithMaxWait(cfg.SchedulerMaxWait),
		refclock.WithMetrics(m),
		refclock.WithLogger(logger),
	); err != nil {
		return WrapExitError(ExitCommandError, "failed to set sync source", err)
	}

	var session string
	if opts.Database != "" {
		st, err := openJournal(opts.Database, cfg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()

		rec, err := store.NewRecorder(ctx, st, "play "+strings.Join(stageNames(result.Stages), ","),
			store.WithRecorderLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal session", err)
		}
		if err := rec.Attach(g); err != nil {
			return WrapExitError(ExitCommandError, "failed to record graph shape", err)
		}
		session = rec.SessionID()
		defer func() {
			if err := rec.Err(); err != nil {
				logger.Warn("journal incomplete", "session", session, "error", err)
			}
		}()
	}

	started := time.Now()
	if err := g.Run(graph.NoStartTime); err != nil {
		return WrapExitError(ExitFailure, "failed to run graph", err)
	}

	code, evs, waitErr := playUntilDone(ctx, g, reg, opts.MetricsAddr, opts.Timeout)
	result.Events = evs
	result.Elapsed = time.Since(started).Round(time.Millisecond).String()

	if err := g.StopWhenReady(time.Second); err != nil {
		logger.Warn("graph did not stop cleanly", "error", err)
	}

	var serveErr *serveError
	switch {
	case errors.As(waitErr, &serveErr):
		return WrapExitError(ExitCommandError, "metrics server failed", serveErr.err)
	case errs.IsTimeout(waitErr):
		_ = out.Error("E_TIMEOUT", fmt.Sprintf("playback did not complete within %s", opts.Timeout), result)
		return NewExitError(ExitFailure, "playback timed out")
	case waitErr != nil:
		_ = out.Error("E_INTERRUPTED", "playback interrupted", result)
		return WrapExitError(ExitFailure, "playback interrupted", waitErr)
	}

	result.Completion = code.String()
	if opts.Format == "json" {
		if err := out.JSON(CLIResponse{Status: "ok", Data: result, Session: session}); err != nil {
			return err
		}
	} else {
		outputPlayText(out.Writer, result, session)
	}

	if code != events.Complete {
		return NewExitError(ExitFailure, fmt.Sprintf("playback ended with %s", code))
	}
	return nil
}

// serveError marks a metrics server failure so it is not mistaken for a
// playback failure.
type serveError struct{ err error }

func (e *serveError) Error() string { return e.err.Error() }

// playUntilDone waits for completion while draining events and, if addr is
// set, serving metrics. Everything stops once the wait ends.
func playUntilDone(ctx context.Context, g *graph.Graph, reg *prometheus.Registry, addr string, timeout time.Duration) (events.Code, []PlayEvent, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(waitCtx)

	var (
		code    events.Code
		waitErr error
		mu      sync.Mutex
		drained []PlayEvent
	)

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		grp.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return &serveError{err: err}
			}
			return nil
		})
		grp.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	grp.Go(func() error {
		defer cancel()
		code, waitErr = waitForCompletion(gctx, g, timeout)
		return nil
	})

	grp.Go(func() error {
		for {
			wait := completionSlice
			if gctx.Err() != nil {
				// The completion event is queued before the wait returns,
				// so one last non-blocking pass picks it up.
				wait = 0
			}
			r, err := g.GetEvent(wait)
			if err != nil {
				if wait == 0 {
					return nil
				}
				continue
			}
			mu.Lock()
			drained = append(drained, PlayEvent{
				Code:   r.Code.String(),
				Param1: formatParam(r.Param1),
				Param2: formatParam(r.Param2),
			})
			mu.Unlock()
			g.FreeEvent(r)
		}
	})

	if err := grp.Wait(); err != nil {
		return 0, drained, err
	}
	return code, drained, waitErr
}

// waitForCompletion waits in slices so ctx cancellation is honored.
func waitForCompletion(ctx context.Context, g *graph.Graph, timeout time.Duration) (events.Code, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		slice := min(completionSlice, time.Until(deadline))
		if slice <= 0 {
			return 0, errs.Timeout("play.wait")
		}
		code, err := g.WaitForCompletion(slice)
		if err == nil {
			return code, nil
		}
		if !errs.IsTimeout(err) {
			return 0, err
		}
	}
}

// stageName names a clip's stage after its file, suffixing repeats.
func stageName(path string, used map[string]int) string {
	name := filepath.Base(path)
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s#%d", name, n)
	}
	return name
}

func stageNames(stages []PlayStage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name
	}
	return out
}

func formatParam(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// outputPlayText outputs the playback result as text.
func outputPlayText(w io.Writer, result PlayResult, session string) {
	fmt.Fprintf(w, "Played %d stage(s) in %s\n", len(result.Stages), result.Elapsed)
	for _, s := range result.Stages {
		if s.SampleRate == 0 {
			fmt.Fprintf(w, "  %s  %s\n", s.Name, s.Duration)
			continue
		}
		fmt.Fprintf(w, "  %s  %d Hz x%d  %s\n", s.Name, s.SampleRate, s.Channels, s.Duration)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Events {
		line := "  " + e.Code
		if e.Param1 != "" || e.Param2 != "" {
			line += fmt.Sprintf(" (%s, %s)", e.Param1, e.Param2)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Result: %s\n", result.Completion)
	if session != "" {
		fmt.Fprintf(w, "Session: %s\n", session)
	}
}
