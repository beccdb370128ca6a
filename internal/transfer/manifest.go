package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"lanshare/internal/domain"
)

// BuildManifest walks the given paths and produces the immutable manifest
// for an outbound transfer plus the index → absolute path mapping workers
// read from. Directories are walked recursively; their entries keep the
// directory's base name as path prefix. Mode is multi-stream when any file
// reaches the threshold.
func BuildManifest(paths []string, parallelism int, multiThreshold int64) (domain.TransferManifest, map[int]string, error) {
	var files []domain.FileDescriptor
	sources := make(map[int]string)

	addFile := func(absPath, relPath string, size int64) error {
		checksum, err := checksumFile(absPath)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", absPath, err)
		}
		sources[len(files)] = absPath
		files = append(files, domain.FileDescriptor{
			Path:     filepath.ToSlash(relPath),
			Size:     size,
			Checksum: checksum,
		})
		return nil
	}

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.TransferManifest{}, nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return domain.TransferManifest{}, nil, err
		}

		if !info.IsDir() {
			if err := addFile(abs, info.Name(), info.Size()); err != nil {
				return domain.TransferManifest{}, nil, err
			}
			continue
		}

		root := filepath.Dir(abs)
		err = filepath.WalkDir(abs, func(entryPath string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(root, entryPath)
			if err != nil {
				return err
			}
			if d.IsDir() {
				files = append(files, domain.FileDescriptor{
					Path: filepath.ToSlash(rel),
					Dir:  true,
				})
				return nil
			}
			entryInfo, err := d.Info()
			if err != nil {
				return err
			}
			return addFile(entryPath, rel, entryInfo.Size())
		})
		if err != nil {
			return domain.TransferManifest{}, nil, err
		}
	}

	mode := domain.ModeSingleStream
	for _, f := range files {
		if !f.Dir && multiThreshold > 0 && f.Size >= multiThreshold {
			mode = domain.ModeMultiStream
			break
		}
	}

	manifest := domain.TransferManifest{
		Files:       files,
		Mode:        mode,
		Parallelism: parallelism,
	}
	if err := manifest.Validate(); err != nil {
		return domain.TransferManifest{}, nil, err
	}
	return manifest, sources, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
