package refclock

type adviseKind int

const (
	kindOneShot adviseKind = iota + 1
	kindPeriodic
)

type slotState int

const (
	slotFree slotState = iota
	slotLive
	slotDead // unadvised; swept onto the free list by the next pass
)

// subscription is one slot of the table.
type subscription struct {
	id    SubscriptionID
	kind  adviseKind
	state slotState

	// next is the due time (one-shot) or the next period boundary (periodic).
	next     Time
	interval Time

	oneShot OneShotSignal
	counter CountingSignal
}

// table stores subscriptions in reusable slots. Not safe for concurrent
// use; Clock guards it with its mutex.
type table struct {
	slots []subscription
	free  []int
	index map[SubscriptionID]int
	live  int
}

func newTable() *table {
	return &table{index: make(map[SubscriptionID]int)}
}

// add stores s in a free slot, growing the slice when none is free.
func (t *table) add(s subscription) {
	s.state = slotLive
	var i int
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[i] = s
	} else {
		i = len(t.slots)
		t.slots = append(t.slots, s)
	}
	t.index[s.id] = i
	t.live++
}

// kill marks the subscription dead. Reports whether it was live.
func (t *table) kill(id SubscriptionID) bool {
	i, ok := t.index[id]
	if !ok {
		return false
	}
	delete(t.index, id)
	t.slots[i].state = slotDead
	t.live--
	return true
}

// retire frees a live slot immediately (a fired one-shot).
func (t *table) retire(i int) {
	delete(t.index, t.slots[i].id)
	t.slots[i] = subscription{}
	t.free = append(t.free, i)
	t.live--
}

// sweep moves dead slots onto the free list.
func (t *table) sweep() {
	for i := range t.slots {
		if t.slots[i].state == slotDead {
			t.slots[i] = subscription{}
			t.free = append(t.free, i)
		}
	}
}
