package ports

import (
	"context"

	"lanshare/internal/domain"
)

// SendOptions tunes a single outbound transfer. Zero values fall back to the
// engine's configuration.
type SendOptions struct {
	Parallelism int
}

// Engine drives transfer sessions on both the sending and receiving side.
type Engine interface {
	Send(ctx context.Context, peer domain.PeerAddr, paths []string, opts SendOptions) (domain.SessionState, error)
	StartReceiving(ctx context.Context) error
	Cancel(id domain.SessionID) error
	SessionState(id domain.SessionID) (domain.SessionState, error)
	ListSessions() []domain.SessionState
	Progress(id domain.SessionID) (domain.ProgressSnapshot, bool)
	PendingRequests() []domain.AcceptRequest
	Decide(id domain.RequestID, accept bool) error
	// Acknowledge removes a terminal session and its progress counters.
	Acknowledge(id domain.SessionID) error
	ReceiverSettings() domain.ReceiverSettings
	SetReceiverSettings(s domain.ReceiverSettings)
	Close() error
}

// PeerDirectory exposes the discovery table.
type PeerDirectory interface {
	Snapshot() []domain.PeerRecord
}
