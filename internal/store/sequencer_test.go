package store

import (
	"sync"
	"testing"
)

func TestSequencer_StartsAtZero(t *testing.T) {
	s := NewSequencer()
	if got := s.Current(); got != 0 {
		t.Errorf("Current() = %d, want 0", got)
	}
	if got := s.Next(); got != 1 {
		t.Errorf("Next() = %d, want 1", got)
	}
}

func TestSequencer_ResumesAfterStart(t *testing.T) {
	s := NewSequencerAt(41)
	if got := s.Next(); got != 42 {
		t.Errorf("Next() = %d, want 42", got)
	}
	if got := s.Current(); got != 42 {
		t.Errorf("Current() = %d, want 42", got)
	}
}

func TestSequencer_ConcurrentUnique(t *testing.T) {
	s := NewSequencer()
	const workers, per = 8, 250

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				n := s.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Errorf("unique seqs = %d, want %d", len(seen), workers*per)
	}
}

func TestUUIDv7Generator_Format(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	if len(a) != 36 {
		t.Errorf("len = %d, want 36", len(a))
	}
	if a == b {
		t.Error("consecutive ids are equal")
	}
	if a[14] != '7' {
		t.Errorf("version nibble = %c, want 7", a[14])
	}
}
