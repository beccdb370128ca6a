package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lanshare/internal/domain"
	"lanshare/internal/metrics"
	"lanshare/internal/protocol"
)

// routePlan splits a manifest into the entries streamed sequentially over
// the primary connection and the chunk assignments fanned out to auxiliary
// connections. Both peers derive the same plan from the handshake envelope.
func routePlan(manifest domain.TransferManifest, multiThreshold, minChunkBytes int64) (primary []int, chunks []domain.ChunkAssignment) {
	for i, f := range manifest.Files {
		if f.Dir {
			continue
		}
		if manifest.Mode == domain.ModeMultiStream && f.Size >= multiThreshold {
			chunks = append(chunks, domain.PartitionFile(i, f.Size, manifest.Parallelism, minChunkBytes)...)
			continue
		}
		primary = append(primary, i)
	}
	return primary, chunks
}

// failureReason maps a worker or protocol error to the terminal reason code.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrChecksumMismatch):
		return domain.ReasonChecksumMismatch
	case errors.Is(err, domain.ErrProtocolViolation):
		return domain.ReasonProtocolViolation
	case errors.Is(err, domain.ErrStorageFailure):
		return domain.ReasonStorageFailure
	default:
		return domain.ReasonConnectionLost
	}
}

// failSession records the terminal failed state, pulling the failing file
// position out of the error when a worker reported one.
func (e *Engine) failSession(s *session, err error) {
	file := ""
	var offset int64
	var werr *workerError
	if errors.As(err, &werr) {
		if werr.fileIndex >= 0 && werr.fileIndex < len(s.manifest.Files) {
			file = s.manifest.Files[werr.fileIndex].Path
		}
		offset = werr.offset
	}
	if s.failAt(failureReason(err), file, offset) {
		e.finishObserved(s)
	}
}

func (e *Engine) reporter(s *session, workerID int) reportFunc {
	counter := metrics.BytesSentTotal
	if s.direction == domain.DirectionReceive {
		counter = metrics.BytesReceivedTotal
	}
	return func(delta int64) {
		e.progress.Update(s.id, workerID, delta)
		counter.Add(float64(delta))
	}
}

// runSend drives one outbound session from dial to terminal state.
func (e *Engine) runSend(s *session, sources map[int]string) {
	defer e.wg.Done()
	defer close(s.done)
	defer s.cancelFn()

	logger := e.logger.With(
		slog.String("sessionId", string(s.id)),
		slog.String("peer", s.peer.String()),
	)

	dialer := net.Dialer{Timeout: e.cfg.DialTimeout}
	conn, err := dialer.DialContext(s.ctx, "tcp", s.peer.String())
	if err != nil {
		e.sendFinish(s, logger, err)
		return
	}
	defer conn.Close()

	// Unblocks any in-flight read or write when the session is cancelled.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	env := protocol.Envelope{
		SessionID:      s.id,
		SenderName:     e.cfg.DisplayName,
		Mode:           s.manifest.Mode,
		Parallelism:    s.manifest.Parallelism,
		MultiThreshold: e.cfg.MultiStreamThreshold,
		MinChunkBytes:  e.cfg.MinChunkBytes,
		Files:          s.manifest.Files,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
	if err := protocol.WriteEnvelope(conn, env); err != nil {
		e.sendFinish(s, logger, err)
		return
	}

	// The peer's accept gate may sit on the request for the full decision
	// window before replying.
	_ = conn.SetReadDeadline(time.Now().Add(e.cfg.DecisionTimeout + e.cfg.IdleTimeout))
	reply, err := protocol.ReadReply(conn)
	if err != nil {
		e.sendFinish(s, logger, err)
		return
	}
	switch reply {
	case protocol.ReplyReady:
	case protocol.ReplyRejected:
		if s.finish(domain.SessionRejected, domain.ReasonRejectedByPeer) {
			e.finishObserved(s)
		}
		return
	case protocol.ReplyTimeout:
		if s.finish(domain.SessionRejected, domain.ReasonDecisionTimeout) {
			metrics.DecisionTimeoutsTotal.Inc()
			e.finishObserved(s)
		}
		return
	default:
		e.sendFinish(s, logger, fmt.Errorf("%w: unexpected reply %q", domain.ErrProtocolViolation, reply))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.transition(domain.SessionReady)
	e.progress.Start(s.id, s.manifest.TotalBytes())

	files, err := openSources(sources)
	if err != nil {
		e.sendFinish(s, logger, err)
		return
	}
	defer closeSources(files)

	s.transition(domain.SessionTransferring)
	logger.Info("transfer started",
		slog.String("mode", string(s.manifest.Mode)),
		slog.Int64("totalBytes", s.manifest.TotalBytes()),
		slog.Int("files", len(s.manifest.Files)))

	primary, chunks := routePlan(s.manifest, e.cfg.MultiStreamThreshold, e.cfg.MinChunkBytes)
	limiter := newBandwidthLimiter(e.cfg.BandwidthLimit, e.cfg.BufferSize)

	errCh := make(chan error, len(chunks)+1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		report := e.reporter(s, 0)
		for _, idx := range primary {
			f := s.manifest.Files[idx]
			assignment := domain.ChunkAssignment{FileIndex: idx, Offset: 0, Length: f.Size}
			if err := sendRange(s.ctx, conn, files[idx], assignment, e.cfg.BufferSize, e.cfg.IdleTimeout, limiter, report); err != nil {
				errCh <- err
				s.requestCancel()
				return
			}
		}
	}()

	for i, assignment := range chunks {
		port := s.peer.Port + 1 + i%s.manifest.Parallelism
		wg.Add(1)
		go func(workerID, port int, assignment domain.ChunkAssignment) {
			defer wg.Done()
			if err := e.sendChunk(s, port, files[assignment.FileIndex], assignment, limiter, workerID); err != nil {
				errCh <- err
				s.requestCancel()
			}
		}(i+1, port, assignment)
	}

	wg.Wait()
	close(errCh)
	firstErr := <-errCh

	if s.cancelled.Load() && (firstErr == nil || errors.Is(firstErr, context.Canceled)) {
		if s.finish(domain.SessionCancelled, domain.ReasonCancelled) {
			e.finishObserved(s)
		}
		return
	}
	if firstErr != nil {
		e.sendFinish(s, logger, firstErr)
		return
	}

	s.transition(domain.SessionFinalizing)
	_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
	if err := protocol.WriteReply(conn, protocol.ReplyComplete); err != nil {
		e.sendFinish(s, logger, err)
		return
	}

	// The peer hashes every received file before answering.
	_ = conn.SetReadDeadline(time.Now().Add(verifyTimeout(e.cfg.IdleTimeout)))
	reply, err = protocol.ReadReply(conn)
	if err != nil {
		e.sendFinish(s, logger, err)
		return
	}
	switch reply {
	case protocol.ReplyVerified:
		if s.transition(domain.SessionCompleted) {
			e.finishObserved(s)
		}
	case protocol.ReplyChecksumMismatch:
		e.sendFinish(s, logger, domain.ErrChecksumMismatch)
	default:
		e.sendFinish(s, logger, fmt.Errorf("%w: unexpected reply %q", domain.ErrProtocolViolation, reply))
	}
}

// sendChunk dials one auxiliary connection, announces the assignment and
// streams the byte range.
func (e *Engine) sendChunk(s *session, port int, src *os.File, assignment domain.ChunkAssignment, limiter *rate.Limiter, workerID int) error {
	dialer := net.Dialer{Timeout: e.cfg.DialTimeout}
	addr := net.JoinHostPort(s.peer.Address, fmt.Sprint(port))
	conn, err := dialer.DialContext(s.ctx, "tcp", addr)
	if err != nil {
		return &workerError{fileIndex: assignment.FileIndex, offset: assignment.Offset, err: fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)}
	}
	defer conn.Close()

	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
	header := protocol.ChunkHeader{
		SessionID: s.id,
		FileIndex: assignment.FileIndex,
		Offset:    assignment.Offset,
		Length:    assignment.Length,
	}
	if err := protocol.WriteChunkHeader(conn, header); err != nil {
		return &workerError{fileIndex: assignment.FileIndex, offset: assignment.Offset, err: err}
	}
	return sendRange(s.ctx, conn, src, assignment, e.cfg.BufferSize, e.cfg.IdleTimeout, limiter, e.reporter(s, workerID))
}

// sendFinish resolves an outbound session that broke before completing.
// Cancellation wins over the underlying error.
func (e *Engine) sendFinish(s *session, logger *slog.Logger, err error) {
	if s.cancelled.Load() {
		if s.finish(domain.SessionCancelled, domain.ReasonCancelled) {
			e.finishObserved(s)
		}
		return
	}
	logger.Warn("send failed", slog.String("error", err.Error()))
	e.failSession(s, err)
}

func openSources(sources map[int]string) (map[int]*os.File, error) {
	files := make(map[int]*os.File, len(sources))
	for idx, path := range sources {
		f, err := os.Open(path)
		if err != nil {
			closeSources(files)
			return nil, fmt.Errorf("%w: open source %s: %v", domain.ErrStorageFailure, path, err)
		}
		files[idx] = f
	}
	return files, nil
}

func closeSources(files map[int]*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// verifyTimeout bounds the wait for the peer's post-transfer checksum
// verdict; hashing large payloads takes well past one idle window.
func verifyTimeout(idle time.Duration) time.Duration {
	return 4 * idle
}
