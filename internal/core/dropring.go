package core

import "sync"

// DropRing is a bounded FIFO of drop-edge timestamps (milliseconds).
// It is written from the edge-handler context (on_drop_edge) and drained
// from the tick goroutine. Go has no interrupt-disable primitive, so the
// single-producer/single-consumer discipline is realized with a short,
// uncontended mutex around enqueue/dequeue rather than lock-free atomics —
// see DESIGN.md.
type DropRing struct {
	mu         sync.Mutex
	buf        []int64
	head, tail int
	count      int

	lastEdge     int64
	haveLastEdge bool
	lastDripTime int64
}

// NewDropRing creates a ring of the given capacity.
func NewDropRing(capacity int) *DropRing {
	if capacity < DropRingMinCapacity {
		capacity = DropRingMinCapacity
	}
	return &DropRing{buf: make([]int64, capacity)}
}

// OnEdge is the edge-handler entry point. It debounces
// edges separated by ≤ 50ms, and otherwise enqueues the timestamp,
// dropping the oldest entry if the ring is full.
func (r *DropRing) OnEdge(nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.haveLastEdge {
		dt := nowMs - r.lastEdge
		if dt <= DebounceMs {
			return
		}
	}
	r.lastEdge = nowMs
	r.haveLastEdge = true
	r.lastDripTime = nowMs

	r.push(nowMs)
}

// push enqueues a timestamp, evicting the oldest entry if full. Caller
// must hold r.mu.
func (r *DropRing) push(ts int64) {
	if r.count == len(r.buf) {
		// Ring overflow: drop oldest, never block the edge handler.
		r.head = (r.head + 1) % len(r.buf)
		r.count--
	}
	r.buf[r.tail] = ts
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
}

// LastDripTime returns the timestamp of the most recent accepted edge,
// used by the stall detector.
func (r *DropRing) LastDripTime() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDripTime, r.haveLastEdge
}

// Drain empties the ring into a caller-owned slice, then reseeds the ring
// with only the last timestamp (so the next window can compute an interval
// against it). Returns the drained timestamps in chronological order.
func (r *DropRing) Drain() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int64, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}

	r.head, r.tail, r.count = 0, 0, 0
	if len(out) > 0 {
		r.push(out[len(out)-1])
	}
	return out
}

// TickExtract implements the per-tick extraction: drains the
// ring, and if at least two timestamps are available, computes the mean
// of the intervals that fall in the physical window (50ms, 5000ms). It
// returns the measured rate in drops/second and the count of accepted
// intervals (the drops "accounted for" this tick). If fewer than two
// timestamps are available, rate is reported as not-measured.
func (r *DropRing) TickExtract() (rateDps float64, newDrops int, measured bool) {
	ts := r.Drain()
	if len(ts) <= 1 {
		return 0, 0, false
	}

	var sum float64
	var n int
	for i := 1; i < len(ts); i++ {
		dt := ts[i] - ts[i-1]
		if dt > DebounceMs && dt < 5000 {
			sum += float64(dt)
			n++
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	meanMs := sum / float64(n)
	return 1000.0 / meanMs, n, true
}
