package domain

import "time"

// ProgressSnapshot is a read-only aggregate of one session's transfer
// progress, recomputed from per-worker counters on read.
type ProgressSnapshot struct {
	SessionID        SessionID     `json:"sessionId"`
	BytesTransferred int64         `json:"bytesTransferred"`
	TotalBytes       int64         `json:"totalBytes"`
	Rate             float64       `json:"rate"` // bytes per second
	ETA              time.Duration `json:"eta"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
