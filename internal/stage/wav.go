package stage

import (
	"context"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/refclock"
)

// WavInfo describes a probed WAV file.
type WavInfo struct {
	Path     string
	Format   goaudio.Format
	BitDepth int
	Duration time.Duration
}

// ProbeWAV reads a WAV file's header and returns its format and duration.
func ProbeWAV(path string) (WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WavInfo{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return WavInfo{}, fmt.Errorf("decode wav %s: invalid file: %v", path, decoder.Err())
	}

	d, err := decoder.Duration()
	if err != nil {
		return WavInfo{}, fmt.Errorf("wav duration %s: %w", path, err)
	}

	return WavInfo{
		Path: path,
		Format: goaudio.Format{
			NumChannels: int(decoder.NumChans),
			SampleRate:  int(decoder.SampleRate),
		},
		BitDepth: int(decoder.BitDepth),
		Duration: d,
	}, nil
}

// WavRenderer plays a WAV file against the graph's reference clock.
//
// Run asks the clock to signal at start plus the time left in the file.
// Pause freezes the time left; Stop rewinds to the beginning. When the
// signal fires the renderer reports Complete and stays Running, as a
// renderer at end of stream does.
type WavRenderer struct {
	base

	info WavInfo

	// guarded by base.mu
	remaining refclock.Time
	runStart  refclock.Time
	adviseID  refclock.SubscriptionID
	completed bool
}

// NewWavRenderer probes path and returns a stopped renderer for it.
func NewWavRenderer(path string, opts ...Option) (*WavRenderer, error) {
	info, err := ProbeWAV(path)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)

	r := &WavRenderer{
		base:      newBase(path, o.logger),
		info:      info,
		remaining: refclock.FromDuration(info.Duration),
	}
	r.logger.Debug("loaded wav",
		"path", path,
		"sample_rate", info.Format.SampleRate,
		"channels", info.Format.NumChannels,
		"duration", info.Duration,
	)
	return r, nil
}

// Info returns the probed file description.
func (r *WavRenderer) Info() WavInfo {
	return r.info
}

// Remaining returns how much of the file is left to play, as of the last
// Pause or Stop.
func (r *WavRenderer) Remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining.Duration()
}

// Stop implements graph.Stage.
func (r *WavRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unadviseLocked()
	r.halt()
	r.state = graph.Stopped
	r.remaining = refclock.FromDuration(r.info.Duration)
	r.completed = false
	return nil
}

// Close stops the renderer and waits for its waiter goroutine to exit.
func (r *WavRenderer) Close() error {
	err := r.Stop()
	r.join()
	return err
}

// Pause implements graph.Stage.
func (r *WavRenderer) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == graph.Running && !r.completed && r.clock != nil {
		played := r.clock.Now() - r.runStart
		r.remaining = max(r.remaining-max(played, 0), 0)
	}
	r.unadviseLocked()
	r.halt()
	r.state = graph.Paused
	return nil
}

// Run implements graph.Stage.
func (r *WavRenderer) Run(start refclock.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == graph.Running {
		return nil
	}
	if r.clock == nil {
		return errs.InvalidArgument("wav.run", "no sync source")
	}
	if start == graph.NoStartTime {
		start = r.clock.Now()
	}

	r.state = graph.Running
	r.runStart = start
	if r.completed {
		return nil
	}

	sig := refclock.NewEvent()
	id, err := r.clock.AdviseTime(start, r.remaining, sig)
	if err != nil {
		r.state = graph.Paused
		return fmt.Errorf("advise end of stream: %w", err)
	}
	r.adviseID = id

	r.spawn(func(ctx context.Context, gen uint64) {
		if err := sig.Wait(ctx); err != nil {
			return
		}
		r.mu.Lock()
		if !r.current(gen) {
			r.mu.Unlock()
			return
		}
		r.completed = true
		r.remaining = 0
		r.adviseID = 0
		r.mu.Unlock()

		r.logger.Debug("end of stream")
		r.notify(events.Complete, nil)
	})
	return nil
}

func (r *WavRenderer) unadviseLocked() {
	if r.adviseID != 0 && r.clock != nil {
		r.clock.Unadvise(r.adviseID)
	}
	r.adviseID = 0
}
