package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"lanshare/internal/domain"
)

// maxFrameBytes caps a single metadata frame. The envelope precedes raw file
// bytes on the same connection, so a corrupt length prefix must never make
// the receiver allocate or swallow an unbounded payload.
const maxFrameBytes = 16 << 20

// Envelope is the handshake metadata sent on the primary connection before
// any file bytes.
// MultiThreshold and MinChunkBytes are carried in the envelope rather than
// assumed from local config: both peers must route files and partition
// ranges identically, and the values are runtime configuration on the
// sending side.
type Envelope struct {
	Version        string                  `json:"version"`
	SessionID      domain.SessionID        `json:"sessionId"`
	SenderName     string                  `json:"senderName"`
	Mode           domain.TransferMode     `json:"mode"`
	Parallelism    int                     `json:"parallelism"`
	MultiThreshold int64                   `json:"multiStreamThreshold,omitempty"`
	MinChunkBytes  int64                   `json:"minChunkBytes,omitempty"`
	Files          []domain.FileDescriptor `json:"files"`
}

// Manifest rebuilds the transfer manifest agreed by the envelope.
func (e Envelope) Manifest() domain.TransferManifest {
	return domain.TransferManifest{
		Files:       e.Files,
		Mode:        e.Mode,
		Parallelism: e.Parallelism,
	}
}

// Reply is the single enumerated token answered over the primary connection.
type Reply string

const (
	ReplyReady            Reply = "ready"
	ReplyRejected         Reply = "rejected"
	ReplyTimeout          Reply = "timeout"
	ReplyComplete         Reply = "complete"
	ReplyVerified         Reply = "verified"
	ReplyChecksumMismatch Reply = "checksum_mismatch"
)

type replyFrame struct {
	Reply Reply `json:"reply"`
}

// ChunkHeader routes one auxiliary connection to its chunk assignment.
// Exactly Length raw bytes follow the header on the wire.
type ChunkHeader struct {
	SessionID domain.SessionID `json:"sessionId"`
	FileIndex int              `json:"fileIndex"`
	Offset    int64            `json:"offset"`
	Length    int64            `json:"length"`
}

// WriteFrame writes a 4-byte big-endian length prefix followed by the JSON
// encoding of v.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(payload))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed JSON frame into v. Any framing or
// decode problem yields domain.ErrProtocolViolation; the caller must close
// the connection rather than attempt to resynchronize.
func ReadFrame(r io.Reader, v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return fmt.Errorf("%w: reading frame length: %v", domain.ErrProtocolViolation, err)
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 || size > maxFrameBytes {
		return fmt.Errorf("%w: frame length %d", domain.ErrProtocolViolation, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("%w: reading frame body: %v", domain.ErrProtocolViolation, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProtocolViolation, err)
	}
	return nil
}

// WriteEnvelope sends the handshake envelope.
func WriteEnvelope(w io.Writer, e Envelope) error {
	if e.Version == "" {
		e.Version = Version
	}
	return WriteFrame(w, e)
}

// ReadEnvelope reads and validates the handshake envelope.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var e Envelope
	if err := ReadFrame(r, &e); err != nil {
		return Envelope{}, err
	}
	if e.SessionID == "" {
		return Envelope{}, fmt.Errorf("%w: missing session id", domain.ErrProtocolViolation)
	}
	if err := e.Manifest().Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrProtocolViolation, err)
	}
	if e.Mode == domain.ModeMultiStream && (e.MultiThreshold <= 0 || e.MinChunkBytes <= 0) {
		return Envelope{}, fmt.Errorf("%w: multi-stream envelope without threshold/chunk parameters", domain.ErrProtocolViolation)
	}
	return e, nil
}

// WriteReply sends a reply token frame.
func WriteReply(w io.Writer, reply Reply) error {
	return WriteFrame(w, replyFrame{Reply: reply})
}

// ReadReply reads a reply token frame.
func ReadReply(r io.Reader) (Reply, error) {
	var f replyFrame
	if err := ReadFrame(r, &f); err != nil {
		return "", err
	}
	switch f.Reply {
	case ReplyReady, ReplyRejected, ReplyTimeout, ReplyComplete, ReplyVerified, ReplyChecksumMismatch:
		return f.Reply, nil
	}
	return "", fmt.Errorf("%w: unknown reply %q", domain.ErrProtocolViolation, f.Reply)
}

// WriteChunkHeader sends the routing header on an auxiliary connection.
func WriteChunkHeader(w io.Writer, h ChunkHeader) error {
	return WriteFrame(w, h)
}

// ReadChunkHeader reads and validates an auxiliary connection header.
func ReadChunkHeader(r io.Reader) (ChunkHeader, error) {
	var h ChunkHeader
	if err := ReadFrame(r, &h); err != nil {
		return ChunkHeader{}, err
	}
	if h.SessionID == "" || h.FileIndex < 0 || h.Offset < 0 || h.Length < 0 {
		return ChunkHeader{}, fmt.Errorf("%w: invalid chunk header", domain.ErrProtocolViolation)
	}
	return h, nil
}
