package filter

import "fmt"

// Eviction selects when the oldest sample leaves the running sums.
type Eviction int

const (
	// EvictLagged stores and adds the new sample, advances the write index,
	// then subtracts the slot the next push will overwrite. The sums cover
	// the last W-1 pushes. This is the ordering flight controllers ship with.
	EvictLagged Eviction = iota
	// EvictExact subtracts the slot about to be overwritten before storing,
	// so the sums cover exactly the last W pushes.
	EvictExact
)

func (e Eviction) String() string {
	switch e {
	case EvictLagged:
		return "lagged"
	case EvictExact:
		return "exact"
	}
	return fmt.Sprintf("eviction(%d)", int(e))
}

// ParseEviction maps a config string to an Eviction. Empty means lagged.
func ParseEviction(s string) (Eviction, error) {
	switch s {
	case "", "lagged":
		return EvictLagged, nil
	case "exact":
		return EvictExact, nil
	}
	return 0, fmt.Errorf("unknown eviction %q", s)
}

// Moments are the running sums kept by a Window.
type Moments struct {
	Sum   Triple // Σx Σy Σz
	SumSq Triple // Σx² Σy² Σz²
	Cross Triple // Σxy Σxz Σyz, indexed by Pair
}

func (m *Moments) add(v Triple) {
	for a := range v {
		m.Sum[a] += v[a]
		m.SumSq[a] += v[a] * v[a]
	}
	for p, ax := range pairAxes {
		m.Cross[p] += v[ax[0]] * v[ax[1]]
	}
}

func (m *Moments) sub(v Triple) {
	for a := range v {
		m.Sum[a] -= v[a]
		m.SumSq[a] -= v[a] * v[a]
	}
	for p, ax := range pairAxes {
		m.Cross[p] -= v[ax[0]] * v[ax[1]]
	}
}

// Window is a fixed-length circular buffer of triples with O(1) running
// moments. Storage is allocated once by NewWindow; Push never allocates.
type Window struct {
	buf     []Triple
	next    int
	evict   Eviction
	moments Moments
}

// NewWindow returns a zero-filled window of the given length.
// It panics if length < 1; callers validate configuration first.
func NewWindow(length int, evict Eviction) *Window {
	if length < 1 {
		panic(fmt.Sprintf("filter: window length %d < 1", length))
	}
	return &Window{buf: make([]Triple, length), evict: evict}
}

// Push stores v and updates the running moments incrementally.
func (w *Window) Push(v Triple) {
	if w.evict == EvictExact {
		w.moments.sub(w.buf[w.next])
	}
	w.buf[w.next] = v
	w.moments.add(v)
	w.next++
	if w.next >= len(w.buf) {
		w.next = 0
	}
	if w.evict == EvictLagged {
		w.moments.sub(w.buf[w.next])
	}
}

func (w *Window) Len() int { return len(w.buf) }

func (w *Window) Eviction() Eviction { return w.evict }

// Moments returns a copy of the running sums.
func (w *Window) Moments() Moments { return w.moments }

// Contents returns the buffer oldest first, including zero slots that have
// not been written yet.
func (w *Window) Contents() []Triple {
	out := make([]Triple, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	return append(out, w.buf[:w.next]...)
}

// Tracked returns the samples currently represented in the moments, oldest
// first. With EvictLagged the oldest buffered slot is already excluded.
func (w *Window) Tracked() []Triple {
	c := w.Contents()
	if w.evict == EvictLagged {
		return c[1:]
	}
	return c
}
