package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"lanshare/internal/domain"
)

// session is the engine-internal state of one transfer. The coordinator
// goroutine owns its lifecycle; everything else reads through state().
type session struct {
	id        domain.SessionID
	direction domain.Direction
	peer      domain.PeerAddr
	peerName  string
	manifest  domain.TransferManifest
	createdAt time.Time

	ctx       context.Context
	cancelFn  context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}

	mu           sync.Mutex
	status       domain.SessionStatus
	reason       string
	failedFile   string
	failedOffset int64
	updatedAt    time.Time
}

func newSession(parent context.Context, id domain.SessionID, direction domain.Direction, peer domain.PeerAddr, manifest domain.TransferManifest) *session {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now().UTC()
	return &session{
		id:        id,
		direction: direction,
		peer:      peer,
		manifest:  manifest,
		createdAt: now,
		ctx:       ctx,
		cancelFn:  cancel,
		done:      make(chan struct{}),
		status:    domain.SessionNegotiating,
		updatedAt: now,
	}
}

// transition moves the state machine forward. Transitions that the machine
// forbids (including any transition out of a terminal state) are ignored,
// which makes concurrent failure signals idempotent.
func (s *session) transition(next domain.SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransitionTo(next) {
		return false
	}
	s.status = next
	s.updatedAt = time.Now().UTC()
	return true
}

func (s *session) finish(next domain.SessionStatus, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransitionTo(next) {
		return false
	}
	s.status = next
	s.reason = reason
	s.updatedAt = time.Now().UTC()
	return true
}

// failAt records the failing file and byte offset along with the terminal
// failed state.
func (s *session) failAt(reason, file string, offset int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransitionTo(domain.SessionFailed) {
		return false
	}
	s.status = domain.SessionFailed
	s.reason = reason
	s.failedFile = file
	s.failedOffset = offset
	s.updatedAt = time.Now().UTC()
	return true
}

// requestCancel signals every worker of the session to stop.
func (s *session) requestCancel() {
	s.cancelled.Store(true)
	s.cancelFn()
}

func (s *session) currentStatus() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *session) state() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionState{
		ID:           s.id,
		Direction:    s.direction,
		Peer:         s.peer,
		PeerName:     s.peerName,
		Status:       s.status,
		Mode:         s.manifest.Mode,
		Parallelism:  s.manifest.Parallelism,
		Files:        s.manifest.Files,
		TotalBytes:   s.manifest.TotalBytes(),
		Reason:       s.reason,
		FailedFile:   s.failedFile,
		FailedOffset: s.failedOffset,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
}
