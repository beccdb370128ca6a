package transfer

import (
	"sync"
	"time"

	"lanshare/internal/domain"
)

// rateWindow bounds the sliding window used for rate/ETA estimation.
const rateWindow = 5 * time.Second

type progressSample struct {
	at   time.Time
	done int64
}

type sessionCounters struct {
	total   int64
	done    int64
	workers map[int]int64
	samples []progressSample
}

// Aggregator accumulates per-worker byte counters for in-flight sessions.
// Update is safe from arbitrarily many workers and never blocks on anything
// but its own mutex; rate and ETA are computed lazily on Snapshot.
type Aggregator struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*sessionCounters
	now      func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		sessions: make(map[domain.SessionID]*sessionCounters),
		now:      time.Now,
	}
}

// Start registers a session with its expected total byte count.
func (a *Aggregator) Start(id domain.SessionID, totalBytes int64) {
	a.mu.Lock()
	a.sessions[id] = &sessionCounters{
		total:   totalBytes,
		workers: make(map[int]int64),
		samples: []progressSample{{at: a.now(), done: 0}},
	}
	a.mu.Unlock()
}

// Update adds bytesDelta to the given worker's counter. Unknown sessions are
// ignored so late worker reports after Remove are harmless.
func (a *Aggregator) Update(id domain.SessionID, workerID int, bytesDelta int64) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.sessions[id]
	if !ok {
		return
	}
	c.done += bytesDelta
	c.workers[workerID] += bytesDelta

	// Coalesce samples so heavy update traffic keeps the window small.
	if n := len(c.samples); n > 0 && now.Sub(c.samples[n-1].at) < 100*time.Millisecond {
		c.samples[n-1].done = c.done
	} else {
		c.samples = append(c.samples, progressSample{at: now, done: c.done})
	}
	c.pruneLocked(now)
}

func (c *sessionCounters) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	firstFresh := 0
	for firstFresh < len(c.samples)-1 && c.samples[firstFresh+1].at.Before(cutoff) {
		firstFresh++
	}
	if firstFresh > 0 {
		c.samples = append(c.samples[:0], c.samples[firstFresh:]...)
	}
}

// Snapshot recomputes the read-only progress view for one session.
func (a *Aggregator) Snapshot(id domain.SessionID) (domain.ProgressSnapshot, bool) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.sessions[id]
	if !ok {
		return domain.ProgressSnapshot{}, false
	}

	snapshot := domain.ProgressSnapshot{
		SessionID:        id,
		BytesTransferred: c.done,
		TotalBytes:       c.total,
		UpdatedAt:        now,
	}

	if len(c.samples) > 0 {
		oldest := c.samples[0]
		elapsed := now.Sub(oldest.at).Seconds()
		if elapsed > 0 {
			snapshot.Rate = float64(c.done-oldest.done) / elapsed
		}
	}
	if remaining := c.total - c.done; remaining > 0 && snapshot.Rate > 0 {
		snapshot.ETA = time.Duration(float64(remaining) / snapshot.Rate * float64(time.Second))
	}
	return snapshot, true
}

// Remove drops a session's counters.
func (a *Aggregator) Remove(id domain.SessionID) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}
