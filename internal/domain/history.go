package domain

import (
	"errors"
	"time"
)

// TransferRecord is the persisted history entry for one finished session.
type TransferRecord struct {
	ID         SessionID     `json:"id"`
	Direction  Direction     `json:"direction"`
	Peer       PeerAddr      `json:"peer"`
	PeerName   string        `json:"peerName,omitempty"`
	FileCount  int           `json:"fileCount"`
	TotalBytes int64         `json:"totalBytes"`
	Status     SessionStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Validate checks domain invariants for TransferRecord.
func (r TransferRecord) Validate() error {
	if r.ID == "" {
		return errors.New("session id is required")
	}
	if r.TotalBytes < 0 {
		return errors.New("totalBytes must not be negative")
	}
	if !r.Status.Terminal() {
		return errors.New("history records require a terminal status")
	}
	switch r.Direction {
	case DirectionSend, DirectionReceive:
	default:
		return errors.New("invalid direction: " + string(r.Direction))
	}
	return nil
}

// ReceiverSettings controls how inbound transfers are admitted and stored.
type ReceiverSettings struct {
	SaveDir          string `json:"saveDir"`
	AutoAccept       bool   `json:"autoAccept"`
	OverwriteFiles   bool   `json:"overwriteFiles"`
	CreateSubfolders bool   `json:"createSubfolders"`
	SkipVerify       bool   `json:"skipVerify"`
}
