package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/time/rate"

	"lanshare/internal/domain"
)

// workerError carries the failing file position so terminal states can
// report where a transfer broke.
type workerError struct {
	fileIndex int
	offset    int64
	err       error
}

func (e *workerError) Error() string {
	return fmt.Sprintf("worker at file %d offset %d: %v", e.fileIndex, e.offset, e.err)
}

func (e *workerError) Unwrap() error { return e.err }

// reportFunc receives byte deltas as a worker makes progress.
type reportFunc func(bytesDelta int64)

// sendRange copies assignment.Length bytes of the source file to conn in
// buffer-sized increments. Progress is reported on every increment; the
// worker stops after the current increment when ctx is cancelled. It never
// retries: any error is escalated to the coordinator.
func sendRange(ctx context.Context, conn net.Conn, src *os.File, assignment domain.ChunkAssignment, bufSize int, idleTimeout time.Duration, limiter *rate.Limiter, report reportFunc) error {
	buf := make([]byte, bufSize)
	offset := assignment.Offset
	remaining := assignment.Length

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := src.ReadAt(buf[:n], offset); err != nil {
			return &workerError{fileIndex: assignment.FileIndex, offset: offset, err: fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)}
		}

		if limiter != nil {
			if err := limiter.WaitN(ctx, int(n)); err != nil {
				return err
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(idleTimeout))
		if _, err := conn.Write(buf[:n]); err != nil {
			return &workerError{fileIndex: assignment.FileIndex, offset: offset, err: fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)}
		}

		offset += n
		remaining -= n
		report(n)
	}
	return nil
}

// receiveRange reads assignment.Length bytes from conn and writes them
// directly into the file at the assigned offset, so physical write order
// across workers is irrelevant.
func receiveRange(ctx context.Context, conn net.Conn, dst *os.File, assignment domain.ChunkAssignment, bufSize int, idleTimeout time.Duration, limiter *rate.Limiter, report reportFunc) error {
	buf := make([]byte, bufSize)
	offset := assignment.Offset
	remaining := assignment.Length

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}

		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		read, err := io.ReadFull(conn, buf[:n])
		if err != nil {
			return &workerError{fileIndex: assignment.FileIndex, offset: offset, err: fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)}
		}

		if limiter != nil {
			if err := limiter.WaitN(ctx, read); err != nil {
				return err
			}
		}

		if _, err := dst.WriteAt(buf[:read], offset); err != nil {
			return &workerError{fileIndex: assignment.FileIndex, offset: offset, err: fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)}
		}

		offset += int64(read)
		remaining -= int64(read)
		report(int64(read))
	}
	return nil
}

// newBandwidthLimiter returns a shared per-session limiter, or nil when the
// cap is disabled. Burst must cover one full buffer increment.
func newBandwidthLimiter(bytesPerSec int64, bufSize int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := bufSize
	if int64(burst) < bytesPerSec {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
