package domain

import "time"

type SessionID string

type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

type SessionStatus string

const (
	SessionNegotiating  SessionStatus = "negotiating"
	SessionReady        SessionStatus = "ready"
	SessionTransferring SessionStatus = "transferring"
	SessionFinalizing   SessionStatus = "finalizing"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
	SessionRejected     SessionStatus = "rejected"
	SessionCancelled    SessionStatus = "cancelled"
)

// Terminal reports whether the status ends the session's state machine.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionRejected, SessionCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the monotonic session state machine:
// negotiating → ready → transferring → finalizing → completed, with
// failed/rejected/cancelled reachable from any non-terminal state.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case SessionFailed, SessionCancelled:
		return true
	case SessionRejected:
		return s == SessionNegotiating
	case SessionReady:
		return s == SessionNegotiating
	case SessionTransferring:
		return s == SessionReady
	case SessionFinalizing:
		return s == SessionTransferring
	case SessionCompleted:
		return s == SessionFinalizing
	}
	return false
}

// SessionState is a read-only view of one transfer session.
type SessionState struct {
	ID           SessionID        `json:"id"`
	Direction    Direction        `json:"direction"`
	Peer         PeerAddr         `json:"peer"`
	PeerName     string           `json:"peerName,omitempty"`
	Status       SessionStatus    `json:"status"`
	Mode         TransferMode     `json:"mode"`
	Parallelism  int              `json:"parallelism"`
	Files        []FileDescriptor `json:"files,omitempty"`
	TotalBytes   int64            `json:"totalBytes"`
	Reason       string           `json:"reason,omitempty"`
	FailedFile   string           `json:"failedFile,omitempty"`
	FailedOffset int64            `json:"failedOffset,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// AcceptRequest is a pending inbound transfer awaiting an accept/reject
// decision.
type RequestID string

type AcceptRequest struct {
	ID         RequestID        `json:"id"`
	SessionID  SessionID        `json:"sessionId"`
	Peer       PeerAddr         `json:"peer"`
	SenderName string           `json:"senderName"`
	FileCount  int              `json:"fileCount"`
	TotalBytes int64            `json:"totalBytes"`
	Files      []FileDescriptor `json:"files,omitempty"`
	ReceivedAt time.Time        `json:"receivedAt"`
}
