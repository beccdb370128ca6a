package domain

import (
	"fmt"
	"time"
)

type PeerStatus string

const (
	PeerIdle PeerStatus = "idle"
	PeerBusy PeerStatus = "busy"
)

// PeerAddr identifies a peer's transfer endpoint.
type PeerAddr struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (p PeerAddr) String() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// PeerRecord is one entry of the discovery table. Status is advisory: it is
// surfaced to consumers but never gates connection admission.
type PeerRecord struct {
	Name     string     `json:"name"`
	Address  string     `json:"address"`
	Port     int        `json:"port"`
	Status   PeerStatus `json:"status"`
	Version  string     `json:"version"`
	LastSeen time.Time  `json:"lastSeen"`
}

// Key returns the identity key of the record (address+port).
func (p PeerRecord) Key() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}
