package transfer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lanshare/internal/domain"
)

type Decision string

const (
	DecisionAccepted Decision = "accepted"
	DecisionRejected Decision = "rejected"
	DecisionTimedOut Decision = "timed_out"
)

var ErrAlreadyDecided = fmt.Errorf("request already decided")

type pendingRequest struct {
	req     domain.AcceptRequest
	ch      chan Decision
	decided bool
}

// Gate is the synchronous accept/reject decision point for inbound
// transfers. Submit blocks only the connection handler that called it; a
// consumer resolves the request with Decide, and requests left undecided
// past the timeout auto-reject. This is the one place a network goroutine
// legitimately waits on a human-speed event.
type Gate struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[domain.RequestID]*pendingRequest
}

func NewGate(timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gate{
		timeout: timeout,
		pending: make(map[domain.RequestID]*pendingRequest),
	}
}

// Submit registers the request and blocks until a decision arrives, the
// timeout elapses (auto-reject) or ctx is cancelled (treated as rejection).
func (g *Gate) Submit(ctx context.Context, req domain.AcceptRequest) Decision {
	p := &pendingRequest{req: req, ch: make(chan Decision, 1)}

	g.mu.Lock()
	g.pending[req.ID] = p
	g.mu.Unlock()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case decision := <-p.ch:
		return decision
	case <-timer.C:
		return g.expire(p, DecisionTimedOut)
	case <-ctx.Done():
		return g.expire(p, DecisionRejected)
	}
}

// expire resolves a request from the waiting side. If Decide won the race
// the delivered decision is honored instead.
func (g *Gate) expire(p *pendingRequest, fallback Decision) Decision {
	g.mu.Lock()
	if p.decided {
		g.mu.Unlock()
		return <-p.ch
	}
	p.decided = true
	delete(g.pending, p.req.ID)
	g.mu.Unlock()
	return fallback
}

// Decide resolves a pending request exactly once.
func (g *Gate) Decide(id domain.RequestID, accept bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[id]
	if !ok {
		return fmt.Errorf("accept request %s: %w", id, domain.ErrNotFound)
	}
	if p.decided {
		return ErrAlreadyDecided
	}
	p.decided = true
	delete(g.pending, id)

	if accept {
		p.ch <- DecisionAccepted
	} else {
		p.ch <- DecisionRejected
	}
	return nil
}

// Pending lists requests still awaiting a decision, oldest first.
func (g *Gate) Pending() []domain.AcceptRequest {
	g.mu.Lock()
	requests := make([]domain.AcceptRequest, 0, len(g.pending))
	for _, p := range g.pending {
		requests = append(requests, p.req)
	}
	g.mu.Unlock()

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].ReceivedAt.Before(requests[j].ReceivedAt)
	})
	return requests
}
