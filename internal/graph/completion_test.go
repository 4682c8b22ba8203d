package graph

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
)

// pushLog collects records the aggregator queues.
type pushLog struct {
	mu      sync.Mutex
	records []events.Record
}

func (p *pushLog) push(r events.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
}

func (p *pushLog) codes() []events.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Code, len(p.records))
	for i, r := range p.records {
		out[i] = r.Code
	}
	return out
}

func newTestAggregator(expected int) (*Aggregator, *pushLog) {
	log := &pushLog{}
	a := NewAggregator(log.push, nil, nil)
	a.Configure(expected)
	return a, log
}

func TestAggregator_SynthesizesOneComplete(t *testing.T) {
	a, log := newTestAggregator(3)

	assert.Equal(t, Absorbed, a.OnStageEvent(events.Complete, nil, "r1"))
	assert.Equal(t, Absorbed, a.OnStageEvent(events.Complete, nil, "r2"))
	assert.Empty(t, log.codes(), "renderer completions are not queued")
	assert.False(t, a.Latched())

	assert.Equal(t, Completed, a.OnStageEvent(events.Complete, nil, "r3"))
	assert.Equal(t, []events.Code{events.Complete}, log.codes())
	assert.True(t, a.Latched())

	log.mu.Lock()
	synthesized := log.records[0]
	log.mu.Unlock()
	assert.Nil(t, synthesized.Param1)
	assert.Nil(t, synthesized.Param2)
}

func TestAggregator_FewerThanExpectedNeverCompletes(t *testing.T) {
	a, log := newTestAggregator(2)

	a.OnStageEvent(events.Complete, nil, "r1")

	_, err := a.WaitForCompletion(10 * time.Millisecond)
	assert.True(t, errs.IsTimeout(err))
	assert.Empty(t, log.codes())
}

func TestAggregator_DuplicateReportCountedOnce(t *testing.T) {
	a, log := newTestAggregator(2)

	a.OnStageEvent(events.Complete, nil, "r1")
	assert.Equal(t, Absorbed, a.OnStageEvent(events.Complete, nil, "r1"))
	assert.Equal(t, 1, a.Observed())
	assert.Empty(t, log.codes())
}

func TestAggregator_AnonymousReportsCountIndividually(t *testing.T) {
	a, _ := newTestAggregator(2)

	a.OnStageEvent(events.Complete, nil, nil)
	assert.Equal(t, Completed, a.OnStageEvent(events.Complete, nil, nil))
}

func TestAggregator_UnhashableStageRefCountsIndividually(t *testing.T) {
	type stageRef struct{ Tag any }
	a, log := newTestAggregator(2)

	require.NotPanics(t, func() {
		assert.Equal(t, Absorbed, a.OnStageEvent(events.Complete, nil, stageRef{Tag: []int{1}}))
	})
	assert.Equal(t, Completed, a.OnStageEvent(events.Complete, nil, stageRef{Tag: []int{1}}))
	assert.Equal(t, []events.Code{events.Complete}, log.codes())
}

func TestAggregator_OtherCodesPassThrough(t *testing.T) {
	a, log := newTestAggregator(1)

	assert.Equal(t, PassedThrough, a.OnStageEvent(events.Repaint, nil, nil))
	assert.Equal(t, PassedThrough, a.OnStageEvent(events.UserBase+7, 1, 2))
	assert.Equal(t, []events.Code{events.Repaint, events.UserBase + 7}, log.codes())
	assert.False(t, a.Latched())
}

func TestAggregator_AbortLatchesWithCode(t *testing.T) {
	a, log := newTestAggregator(2)

	assert.Equal(t, PassedThrough, a.OnStageEvent(events.ErrorAbort, "decode failed", nil))
	code, err := a.WaitForCompletion(time.Second)
	require.NoError(t, err)
	assert.Equal(t, events.ErrorAbort, code)
	assert.Equal(t, []events.Code{events.ErrorAbort}, log.codes())
}

func TestAggregator_WaitForCompletion_Blocks(t *testing.T) {
	a, _ := newTestAggregator(1)

	done := make(chan events.Code, 1)
	go func() {
		code, err := a.WaitForCompletion(-1)
		if err == nil {
			done <- code
		}
	}()

	select {
	case <-done:
		t.Fatal("returned before completion")
	case <-time.After(10 * time.Millisecond):
	}

	a.OnStageEvent(events.Complete, nil, "r1")

	select {
	case code := <-done:
		assert.Equal(t, events.Complete, code)
	case <-time.After(time.Second):
		t.Fatal("WaitForCompletion did not return")
	}
}

func TestAggregator_ResetOnLeavingRunning(t *testing.T) {
	a, log := newTestAggregator(1)

	a.OnStageEvent(events.Complete, nil, "r1")
	require.True(t, a.Latched())

	a.OnGraphStateChange(Running)
	assert.True(t, a.Latched(), "entering Running keeps the latch")

	a.OnGraphStateChange(Paused)
	assert.False(t, a.Latched())
	assert.Equal(t, 0, a.Observed())

	_, err := a.WaitForCompletion(0)
	assert.True(t, errs.IsTimeout(err))

	// Same renderer may complete again in the next run
	assert.Equal(t, Completed, a.OnStageEvent(events.Complete, nil, "r1"))
	assert.Equal(t, []events.Code{events.Complete, events.Complete}, log.codes())
}

func TestAggregator_ConfigureResetsObserved(t *testing.T) {
	a, _ := newTestAggregator(2)
	a.OnStageEvent(events.Complete, nil, "r1")

	a.Configure(2)
	assert.Equal(t, 0, a.Observed())
	assert.Equal(t, 2, a.Expected())
}

func TestAggregator_DefaultHandlingCancelled(t *testing.T) {
	a, log := newTestAggregator(2)
	a.SetDefaultHandling(false)

	assert.Equal(t, PassedThrough, a.OnStageEvent(events.Complete, nil, "r1"))
	assert.Equal(t, PassedThrough, a.OnStageEvent(events.Complete, nil, "r2"))
	assert.Equal(t, []events.Code{events.Complete, events.Complete}, log.codes())
	assert.False(t, a.Latched())
	assert.Equal(t, 0, a.Observed())
}

func TestAggregator_ConcurrentRenderers(t *testing.T) {
	const n = 32
	a, log := newTestAggregator(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.OnStageEvent(events.Complete, nil, i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []events.Code{events.Complete}, log.codes(), "exactly one graph completion")
}
