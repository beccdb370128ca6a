// Package protocol holds the pure wire codecs: the discovery datagram and
// the length-prefixed handshake frames exchanged on transfer connections.
// No I/O-owning state lives here so both codecs are testable against byte
// fixtures.
package protocol

import (
	"encoding/json"
	"fmt"

	"lanshare/internal/domain"
)

// Version of the presence and handshake protocol.
const Version = "2.0"

const announceType = "announce"

// Announcement is the discovery datagram broadcast by every instance.
type Announcement struct {
	Type       string            `json:"type"`
	InstanceID string            `json:"id"`
	Name       string            `json:"name"`
	Port       int               `json:"port"`
	Version    string            `json:"version"`
	Status     domain.PeerStatus `json:"status"`
	Timestamp  int64             `json:"timestamp"`
}

// EncodeAnnouncement serializes an announcement datagram.
func EncodeAnnouncement(a Announcement) ([]byte, error) {
	a.Type = announceType
	if a.Version == "" {
		a.Version = Version
	}
	return json.Marshal(a)
}

// DecodeAnnouncement parses a discovery datagram. Truncated, unparseable or
// semantically invalid payloads yield domain.ErrMalformedDatagram so the
// listener can drop them without crashing.
func DecodeAnnouncement(data []byte) (Announcement, error) {
	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return Announcement{}, fmt.Errorf("%w: %v", domain.ErrMalformedDatagram, err)
	}
	if a.Type != announceType {
		return Announcement{}, fmt.Errorf("%w: unexpected type %q", domain.ErrMalformedDatagram, a.Type)
	}
	if a.Name == "" {
		return Announcement{}, fmt.Errorf("%w: missing name", domain.ErrMalformedDatagram)
	}
	if a.Port < 1 || a.Port > 65535 {
		return Announcement{}, fmt.Errorf("%w: port %d out of range", domain.ErrMalformedDatagram, a.Port)
	}
	switch a.Status {
	case domain.PeerIdle, domain.PeerBusy:
	case "":
		a.Status = domain.PeerIdle
	default:
		return Announcement{}, fmt.Errorf("%w: unknown status %q", domain.ErrMalformedDatagram, a.Status)
	}
	return a, nil
}
