package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrAlreadyExists = errors.New("already exists")

// Transfer error taxonomy. Each maps to a reason code carried by terminal
// session states.
var (
	ErrMalformedDatagram = errors.New("malformed discovery datagram")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrConnectionLost    = errors.New("connection lost")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrStorageFailure    = errors.New("storage failure")
)

// Reason codes for terminal non-completed states, stable for consumers.
const (
	ReasonProtocolViolation = "protocol_violation"
	ReasonDecisionTimeout   = "decision_timeout"
	ReasonConnectionLost    = "connection_lost"
	ReasonChecksumMismatch  = "checksum_mismatch"
	ReasonStorageFailure    = "storage_failure"
	ReasonRejectedByPeer    = "rejected_by_peer"
	ReasonRejected          = "rejected"
	ReasonCancelled         = "cancelled"
)
