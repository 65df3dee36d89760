package service

// Tracker counts completed encounters per identity for the lifetime of one
// session. It is owned by a single session loop and never persisted.
type Tracker struct {
	counts map[uint64]int
}

func NewTracker() *Tracker {
	return &Tracker{counts: make(map[uint64]int)}
}

// Register starts tracking nid at zero if it is not tracked yet.
func (t *Tracker) Register(nid uint64) {
	if _, ok := t.counts[nid]; !ok {
		t.counts[nid] = 0
	}
}

func (t *Tracker) Tracked(nid uint64) bool {
	_, ok := t.counts[nid]
	return ok
}

func (t *Tracker) Count(nid uint64) int {
	return t.counts[nid]
}

func (t *Tracker) Set(nid uint64, count int) {
	t.counts[nid] = count
}

func (t *Tracker) Increment(nid uint64) int {
	t.counts[nid]++
	return t.counts[nid]
}

func (t *Tracker) Len() int {
	return len(t.counts)
}
