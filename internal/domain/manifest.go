package domain

import (
	"errors"
	"strings"
)

type TransferMode string

const (
	ModeSingleStream TransferMode = "single"
	ModeMultiStream  TransferMode = "multi"
)

// FileDescriptor describes one entry of a transfer manifest. Paths are
// slash-separated and relative to the transfer root.
type FileDescriptor struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
	Dir      bool   `json:"dir,omitempty"`
}

// TransferManifest is the ordered file list agreed during the handshake.
// Immutable once sent.
type TransferManifest struct {
	Files       []FileDescriptor `json:"files"`
	Mode        TransferMode     `json:"mode"`
	Parallelism int              `json:"parallelism"`
}

// TotalBytes returns the sum of all file sizes in the manifest.
func (m TransferManifest) TotalBytes() int64 {
	var total int64
	for _, f := range m.Files {
		if !f.Dir {
			total += f.Size
		}
	}
	return total
}

// Validate checks manifest invariants before a session is admitted.
func (m TransferManifest) Validate() error {
	switch m.Mode {
	case ModeSingleStream, ModeMultiStream:
	default:
		return errors.New("invalid transfer mode: " + string(m.Mode))
	}
	if m.Parallelism < 1 {
		return errors.New("parallelism must be >= 1")
	}
	if len(m.Files) == 0 {
		return errors.New("manifest has no files")
	}
	for _, f := range m.Files {
		if err := validatePath(f.Path); err != nil {
			return err
		}
		if f.Size < 0 {
			return errors.New("negative file size: " + f.Path)
		}
		if f.Dir && f.Size != 0 {
			return errors.New("directory entry with non-zero size: " + f.Path)
		}
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return errors.New("empty manifest path")
	}
	if strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return errors.New("invalid manifest path: " + path)
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.New("manifest path escapes transfer root: " + path)
		}
	}
	return nil
}
