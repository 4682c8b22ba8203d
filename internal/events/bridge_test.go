package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filtergraph/internal/errs"
)

type post struct {
	msg      uint32
	instance any
}

type recordingPoster struct {
	mu    sync.Mutex
	posts []post
	err   error
}

func (p *recordingPoster) PostMessage(msg uint32, instance any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post{msg: msg, instance: instance})
	return p.err
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

func TestBridge_PostsOpaqueMessagePerEvent(t *testing.T) {
	b := NewBridge(NewQueue(), nil)
	target := &recordingPoster{}
	b.SetNotifyWindow(target, 0x8001, "instance-data")

	b.Push(Record{Code: Paused, Param1: 1})
	b.Push(Record{Code: Complete})

	require.Equal(t, 2, target.count())
	assert.Equal(t, post{msg: 0x8001, instance: "instance-data"}, target.posts[0])
	assert.Equal(t, 2, b.Queue().Len(), "events are still queued for retrieval")
}

func TestBridge_NoTargetNoPost(t *testing.T) {
	b := NewBridge(NewQueue(), nil)
	b.Push(Record{Code: Paused})
	assert.Equal(t, 1, b.Queue().Len())
}

func TestBridge_DisabledSuppressesPosts(t *testing.T) {
	b := NewBridge(NewQueue(), nil)
	target := &recordingPoster{}
	b.SetNotifyWindow(target, 1, nil)

	b.SetNotifyEnabled(false)
	b.Push(Record{Code: Paused})
	assert.Equal(t, 0, target.count())
	assert.Equal(t, NotifyDisabled, b.NotifyFlags())

	b.SetNotifyEnabled(true)
	b.Push(Record{Code: Paused})
	assert.Equal(t, 1, target.count())
}

func TestBridge_SetNotifyFlags(t *testing.T) {
	b := NewBridge(NewQueue(), nil)

	require.NoError(t, b.SetNotifyFlags(NotifyDisabled))
	assert.Equal(t, NotifyDisabled, b.NotifyFlags())

	err := b.SetNotifyFlags(2)
	assert.True(t, errs.IsInvalidArgument(err))
	assert.Equal(t, NotifyDisabled, b.NotifyFlags(), "rejected value leaves setting unchanged")

	err = b.SetNotifyFlags(-1)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestBridge_ClearingTargetStopsPosts(t *testing.T) {
	b := NewBridge(NewQueue(), nil)
	target := &recordingPoster{}
	b.SetNotifyWindow(target, 1, nil)
	b.Push(Record{Code: Paused})

	b.SetNotifyWindow(nil, 0, nil)
	b.Push(Record{Code: Paused})

	assert.Equal(t, 1, target.count())
}

func TestBridge_PostErrorIsNotFatal(t *testing.T) {
	b := NewBridge(NewQueue(), nil)
	b.SetNotifyWindow(&recordingPoster{err: errors.New("window gone")}, 1, nil)

	assert.NotPanics(t, func() { b.Push(Record{Code: Paused}) })
	assert.Equal(t, 1, b.Queue().Len())
}

func TestBridge_ObserversSeeEveryRecord(t *testing.T) {
	b := NewBridge(NewQueue(), nil)
	var seen []Code
	b.AddObserver(ObserverFunc(func(r Record) { seen = append(seen, r.Code) }))

	b.Push(Record{Code: Paused})
	b.Push(Record{Code: ClockChanged})

	assert.Equal(t, []Code{Paused, ClockChanged}, seen)
}

func TestPosterFunc(t *testing.T) {
	var got uint32
	p := PosterFunc(func(msg uint32, _ any) error {
		got = msg
		return nil
	})
	require.NoError(t, p.PostMessage(42, nil))
	assert.Equal(t, uint32(42), got)
}
