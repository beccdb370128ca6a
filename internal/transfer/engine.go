// Package transfer implements the discovery-and-transfer engine's data
// plane: session coordination, the accept gate, chunk workers and progress
// aggregation.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
	"lanshare/internal/metrics"
)

type Config struct {
	DisplayName          string
	TransferPort         int
	BufferSize           int
	IdleTimeout          time.Duration
	DialTimeout          time.Duration
	MaxWorkers           int
	MinChunkBytes        int64
	MultiStreamThreshold int64
	DecisionTimeout      time.Duration
	BandwidthLimit       int64 // bytes/sec per session, 0 = unlimited
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 64 << 10
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = 4
	}
	if c.MinChunkBytes <= 0 {
		c.MinChunkBytes = 100 << 20
	}
	if c.MultiStreamThreshold <= 0 {
		c.MultiStreamThreshold = 200 << 20
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = 30 * time.Second
	}
}

// Engine owns every transfer session, the inbound listener and the accept
// gate. Discovery and progress consumers are wired in from the outside.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	progress *Aggregator
	gate     *Gate

	settingsMu sync.RWMutex
	settings   domain.ReceiverSettings

	mu       sync.Mutex
	sessions map[domain.SessionID]*session
	listener net.Listener
	closed   bool

	wg sync.WaitGroup
}

var _ ports.Engine = (*Engine)(nil)

func New(cfg Config, settings domain.ReceiverSettings, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		progress: NewAggregator(),
		gate:     NewGate(cfg.DecisionTimeout),
		settings: settings,
		sessions: make(map[domain.SessionID]*session),
	}
}

// Aggregator exposes the progress aggregator for read-side consumers.
func (e *Engine) Aggregator() *Aggregator { return e.progress }

func (e *Engine) ReceiverSettings() domain.ReceiverSettings {
	e.settingsMu.RLock()
	defer e.settingsMu.RUnlock()
	return e.settings
}

func (e *Engine) SetReceiverSettings(s domain.ReceiverSettings) {
	e.settingsMu.Lock()
	e.settings = s
	e.settingsMu.Unlock()
}

// Send starts an outbound transfer and returns immediately; the session
// advances in the background.
func (e *Engine) Send(ctx context.Context, peer domain.PeerAddr, paths []string, opts ports.SendOptions) (domain.SessionState, error) {
	parallelism := opts.Parallelism
	if parallelism < 1 || parallelism > e.cfg.MaxWorkers {
		parallelism = e.cfg.MaxWorkers
	}

	manifest, sources, err := BuildManifest(paths, parallelism, e.cfg.MultiStreamThreshold)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("build manifest: %w", err)
	}

	s := newSession(context.Background(), domain.SessionID(uuid.NewString()), domain.DirectionSend, peer, manifest)
	if err := e.register(s); err != nil {
		return domain.SessionState{}, err
	}

	e.wg.Add(1)
	go e.runSend(s, sources)

	return s.state(), nil
}

// StartReceiving binds the transfer port and serves inbound sessions until
// ctx is cancelled or the engine is closed.
func (e *Engine) StartReceiving(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", e.cfg.TransferPort))
	if err != nil {
		return fmt.Errorf("bind transfer port %d: %w", e.cfg.TransferPort, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		ln.Close()
		return fmt.Errorf("engine is closed")
	}
	e.listener = ln
	e.mu.Unlock()

	e.wg.Add(1)
	go e.acceptLoop(ctx, ln)

	e.logger.Info("receiving started", slog.Int("port", e.cfg.TransferPort))
	return nil
}

func (e *Engine) Cancel(id domain.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	if s.currentStatus().Terminal() {
		return nil
	}
	s.requestCancel()
	return nil
}

func (e *Engine) SessionState(id domain.SessionID) (domain.SessionState, error) {
	s, err := e.lookup(id)
	if err != nil {
		return domain.SessionState{}, err
	}
	return s.state(), nil
}

func (e *Engine) ListSessions() []domain.SessionState {
	e.mu.Lock()
	states := make([]domain.SessionState, 0, len(e.sessions))
	for _, s := range e.sessions {
		states = append(states, s.state())
	}
	e.mu.Unlock()

	sort.Slice(states, func(i, j int) bool { return states[i].CreatedAt.Before(states[j].CreatedAt) })
	return states
}

func (e *Engine) Progress(id domain.SessionID) (domain.ProgressSnapshot, bool) {
	return e.progress.Snapshot(id)
}

func (e *Engine) PendingRequests() []domain.AcceptRequest {
	return e.gate.Pending()
}

func (e *Engine) Decide(id domain.RequestID, accept bool) error {
	return e.gate.Decide(id, accept)
}

// Acknowledge removes a terminal session and its progress counters; the
// consumer signals it has seen the terminal state.
func (e *Engine) Acknowledge(id domain.SessionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if !s.currentStatus().Terminal() {
		return fmt.Errorf("session %s is still active", id)
	}
	delete(e.sessions, id)
	e.progress.Remove(id)
	return nil
}

// ActiveSessionCount reports non-terminal sessions; discovery advertises
// busy when it is non-zero.
func (e *Engine) ActiveSessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := 0
	for _, s := range e.sessions {
		if !s.currentStatus().Terminal() {
			active++
		}
	}
	return active
}

// Close cancels every session, stops the listener and waits for all
// goroutines to terminate.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ln := e.listener
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, s := range sessions {
		s.requestCancel()
	}
	e.wg.Wait()
	return nil
}

func (e *Engine) register(s *session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	if _, ok := e.sessions[s.id]; ok {
		return fmt.Errorf("session %s: %w", s.id, domain.ErrAlreadyExists)
	}
	e.sessions[s.id] = s
	return nil
}

func (e *Engine) lookup(id domain.SessionID) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

// finishObserved records a terminal transition in logs and metrics.
func (e *Engine) finishObserved(s *session) {
	state := s.state()
	metrics.TransfersTotal.WithLabelValues(string(state.Direction), string(state.Status)).Inc()

	attrs := []any{
		slog.String("sessionId", string(state.ID)),
		slog.String("direction", string(state.Direction)),
		slog.String("status", string(state.Status)),
	}
	if state.Reason != "" {
		attrs = append(attrs, slog.String("reason", state.Reason))
	}
	if state.Status == domain.SessionCompleted {
		e.logger.Info("transfer finished", attrs...)
		return
	}
	e.logger.Warn("transfer finished", attrs...)
}
