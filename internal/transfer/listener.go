package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"lanshare/internal/domain"
	"lanshare/internal/metrics"
	"lanshare/internal/protocol"
)

func (e *Engine) acceptLoop(ctx context.Context, ln net.Listener) {
	defer e.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}
		e.wg.Add(1)
		go e.handleInbound(ctx, conn)
	}
}

// handleInbound negotiates one inbound session: handshake, accept gate,
// then the receive coordinator. A malformed handshake never creates a
// session; the connection is simply dropped.
func (e *Engine) handleInbound(ctx context.Context, conn net.Conn) {
	defer e.wg.Done()
	defer conn.Close()

	remote := remotePeer(conn)

	_ = conn.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
	env, err := protocol.ReadEnvelope(conn)
	if err != nil {
		e.logger.Warn("handshake rejected",
			slog.String("remote", remote.String()),
			slog.String("error", err.Error()))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s := newSession(context.Background(), env.SessionID, domain.DirectionReceive, remote, env.Manifest())
	s.peerName = env.SenderName
	if err := e.register(s); err != nil {
		e.logger.Warn("inbound session dropped",
			slog.String("sessionId", string(env.SessionID)),
			slog.String("error", err.Error()))
		return
	}
	defer close(s.done)
	defer s.cancelFn()

	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	settings := e.ReceiverSettings()

	decision := DecisionAccepted
	if !settings.AutoAccept {
		req := domain.AcceptRequest{
			ID:         domain.RequestID(uuid.NewString()),
			SessionID:  s.id,
			Peer:       remote,
			SenderName: env.SenderName,
			FileCount:  len(env.Files),
			Files:      env.Files,
			TotalBytes: s.manifest.TotalBytes(),
			ReceivedAt: time.Now().UTC(),
		}
		decision = e.gate.Submit(ctx, req)
	}

	switch decision {
	case DecisionAccepted:
	case DecisionTimedOut:
		metrics.DecisionTimeoutsTotal.Inc()
		_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
		_ = protocol.WriteReply(conn, protocol.ReplyTimeout)
		if s.finish(domain.SessionRejected, domain.ReasonDecisionTimeout) {
			e.finishObserved(s)
		}
		return
	default:
		_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
		_ = protocol.WriteReply(conn, protocol.ReplyRejected)
		if s.finish(domain.SessionRejected, domain.ReasonRejected) {
			e.finishObserved(s)
		}
		return
	}

	e.runReceive(s, env, conn, settings)
}

// chunkKey identifies one announced assignment; auxiliary connections claim
// assignments by header, so arrival order does not matter.
type chunkKey struct {
	fileIndex int
	offset    int64
}

// runReceive drives one accepted inbound session to a terminal state. The
// auxiliary listeners are bound before the ready reply so the sender can
// dial them immediately.
func (e *Engine) runReceive(s *session, env protocol.Envelope, conn net.Conn, settings domain.ReceiverSettings) {
	logger := e.logger.With(
		slog.String("sessionId", string(s.id)),
		slog.String("peer", s.peer.String()),
	)

	saveDir := saveDirFor(settings, s.manifest)
	files, paths, err := prepareDestinations(saveDir, settings, s.manifest)
	if err != nil {
		logger.Warn("prepare destinations failed", slog.String("error", err.Error()))
		_ = protocol.WriteReply(conn, protocol.ReplyRejected)
		e.receiveFinish(s, logger, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err))
		return
	}
	defer closeSources(files)

	primary, chunks := routePlan(s.manifest, env.MultiThreshold, env.MinChunkBytes)
	limiter := newBandwidthLimiter(e.cfg.BandwidthLimit, e.cfg.BufferSize)

	pendingMu := sync.Mutex{}
	pending := make(map[chunkKey]domain.ChunkAssignment, len(chunks))
	for _, a := range chunks {
		pending[chunkKey{fileIndex: a.FileIndex, offset: a.Offset}] = a
	}

	resultCh := make(chan error, len(chunks)+8)
	var handlers sync.WaitGroup

	var auxListeners []net.Listener
	if len(chunks) > 0 {
		auxListeners, err = e.bindAuxListeners(s.manifest.Parallelism)
		if err != nil {
			_ = protocol.WriteReply(conn, protocol.ReplyRejected)
			e.receiveFinish(s, logger, err)
			return
		}
		for _, ln := range auxListeners {
			handlers.Add(1)
			go e.acceptChunks(s, ln, files, &pendingMu, pending, limiter, resultCh, &handlers)
		}
	}
	closeAux := func() {
		for _, ln := range auxListeners {
			ln.Close()
		}
	}
	defer closeAux()

	s.transition(domain.SessionReady)
	_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
	if err := protocol.WriteReply(conn, protocol.ReplyReady); err != nil {
		e.receiveFinish(s, logger, err)
		return
	}

	e.progress.Start(s.id, s.manifest.TotalBytes())
	s.transition(domain.SessionTransferring)
	logger.Info("transfer started",
		slog.String("sender", s.peerName),
		slog.String("mode", string(s.manifest.Mode)),
		slog.Int64("totalBytes", s.manifest.TotalBytes()),
		slog.Int("files", len(s.manifest.Files)))

	// Every auxiliary connection should arrive shortly after the ready
	// reply; assignments still unclaimed after one idle window mean the
	// sender died mid-fan-out.
	var firstErr error
	if len(chunks) > 0 {
		claim := time.AfterFunc(e.cfg.IdleTimeout, func() {
			pendingMu.Lock()
			unclaimed := len(pending)
			pendingMu.Unlock()
			if unclaimed > 0 {
				resultCh <- fmt.Errorf("%w: %d chunk assignments never claimed", domain.ErrConnectionLost, unclaimed)
			}
		})
		defer claim.Stop()
	}

	report := e.reporter(s, 0)
	for _, idx := range primary {
		f := s.manifest.Files[idx]
		assignment := domain.ChunkAssignment{FileIndex: idx, Offset: 0, Length: f.Size}
		if err := receiveRange(s.ctx, conn, files[idx], assignment, e.cfg.BufferSize, e.cfg.IdleTimeout, limiter, report); err != nil {
			firstErr = err
			s.requestCancel()
			break
		}
	}

	for completed := 0; firstErr == nil && completed < len(chunks); {
		err := <-resultCh
		if err != nil {
			firstErr = err
			s.requestCancel()
			break
		}
		completed++
	}

	// Sockets must be fully closed before the terminal state is published.
	closeAux()
	handlers.Wait()

	if s.cancelled.Load() && (firstErr == nil || errors.Is(firstErr, context.Canceled)) {
		e.receiveFinish(s, logger, context.Canceled)
		return
	}
	if firstErr != nil {
		e.receiveFinish(s, logger, firstErr)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
	reply, err := protocol.ReadReply(conn)
	if err != nil {
		e.receiveFinish(s, logger, err)
		return
	}
	if reply != protocol.ReplyComplete {
		e.receiveFinish(s, logger, fmt.Errorf("%w: unexpected reply %q", domain.ErrProtocolViolation, reply))
		return
	}

	s.transition(domain.SessionFinalizing)
	if !settings.SkipVerify {
		if badFile, err := verifyChecksums(s.manifest, paths); err != nil {
			logger.Warn("verification failed", slog.String("file", badFile))
			_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
			_ = protocol.WriteReply(conn, protocol.ReplyChecksumMismatch)
			if s.failAt(domain.ReasonChecksumMismatch, badFile, 0) {
				e.finishObserved(s)
			}
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(e.cfg.IdleTimeout))
	if err := protocol.WriteReply(conn, protocol.ReplyVerified); err != nil {
		e.receiveFinish(s, logger, err)
		return
	}
	if s.transition(domain.SessionCompleted) {
		e.finishObserved(s)
	}
	logger.Info("transfer saved", slog.String("dir", saveDir))
}

// acceptChunks serves one auxiliary listener: each inbound connection
// announces an assignment header, claims the matching pending range and
// streams it into place.
func (e *Engine) acceptChunks(s *session, ln net.Listener, files map[int]*os.File, pendingMu *sync.Mutex, pending map[chunkKey]domain.ChunkAssignment, limiter *rate.Limiter, resultCh chan<- error, handlers *sync.WaitGroup) {
	defer handlers.Done()

	worker := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		worker++
		handlers.Add(1)
		go func(conn net.Conn, workerID int) {
			defer handlers.Done()
			defer conn.Close()

			stop := context.AfterFunc(s.ctx, func() { conn.Close() })
			defer stop()

			_ = conn.SetReadDeadline(time.Now().Add(e.cfg.IdleTimeout))
			header, err := protocol.ReadChunkHeader(conn)
			if err != nil {
				resultCh <- err
				return
			}
			if header.SessionID != s.id {
				resultCh <- fmt.Errorf("%w: chunk for unknown session %s", domain.ErrProtocolViolation, header.SessionID)
				return
			}

			key := chunkKey{fileIndex: header.FileIndex, offset: header.Offset}
			pendingMu.Lock()
			assignment, ok := pending[key]
			delete(pending, key)
			pendingMu.Unlock()
			if !ok || assignment.Length != header.Length {
				resultCh <- fmt.Errorf("%w: unexpected chunk file=%d offset=%d", domain.ErrProtocolViolation, header.FileIndex, header.Offset)
				return
			}

			resultCh <- receiveRange(s.ctx, conn, files[assignment.FileIndex], assignment, e.cfg.BufferSize, e.cfg.IdleTimeout, limiter, e.reporter(s, workerID))
		}(conn, worker)
	}
}

// bindAuxListeners opens the parallelism-sized block of ports directly
// above the primary transfer port.
func (e *Engine) bindAuxListeners(parallelism int) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, parallelism)
	for i := 1; i <= parallelism; i++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", e.cfg.TransferPort+i))
		if err != nil {
			for _, open := range listeners {
				open.Close()
			}
			return nil, fmt.Errorf("bind auxiliary port %d: %w", e.cfg.TransferPort+i, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

// receiveFinish resolves an inbound session that broke before completing.
func (e *Engine) receiveFinish(s *session, logger *slog.Logger, err error) {
	if s.cancelled.Load() {
		if s.finish(domain.SessionCancelled, domain.ReasonCancelled) {
			e.finishObserved(s)
		}
		return
	}
	logger.Warn("receive failed", slog.String("error", err.Error()))
	e.failSession(s, err)
}

// saveDirFor picks the target directory, adding a timestamped batch
// subfolder for multi-file payloads when the receiver asks for one.
func saveDirFor(settings domain.ReceiverSettings, manifest domain.TransferManifest) string {
	dir := settings.SaveDir
	if settings.CreateSubfolders && len(manifest.Files) > 1 {
		dir = filepath.Join(dir, "batch_"+time.Now().Format("20060102_150405"))
	}
	return dir
}

// prepareDestinations creates directories and preallocates every regular
// file so chunk workers can write at arbitrary offsets.
func prepareDestinations(saveDir string, settings domain.ReceiverSettings, manifest domain.TransferManifest) (map[int]*os.File, map[int]string, error) {
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return nil, nil, err
	}

	files := make(map[int]*os.File, len(manifest.Files))
	paths := make(map[int]string, len(manifest.Files))
	for i, f := range manifest.Files {
		dest := filepath.Join(saveDir, filepath.FromSlash(f.Path))
		if f.Dir {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				closeSources(files)
				return nil, nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			closeSources(files)
			return nil, nil, err
		}
		if !settings.OverwriteFiles {
			dest = uniquePath(dest)
		}
		out, err := os.OpenFile(dest, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			closeSources(files)
			return nil, nil, err
		}
		if err := out.Truncate(f.Size); err != nil {
			out.Close()
			closeSources(files)
			return nil, nil, err
		}
		files[i] = out
		paths[i] = dest
	}
	return files, paths, nil
}

// uniquePath appends " (n)" before the extension until the name is free.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := base + " (" + strconv.Itoa(i) + ")" + ext
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// verifyChecksums re-hashes every received file against the manifest and
// returns the first mismatching path.
func verifyChecksums(manifest domain.TransferManifest, paths map[int]string) (string, error) {
	for i, f := range manifest.Files {
		if f.Dir || f.Checksum == "" {
			continue
		}
		sum, err := checksumFile(paths[i])
		if err != nil {
			return f.Path, fmt.Errorf("%w: %v", domain.ErrChecksumMismatch, err)
		}
		if sum != f.Checksum {
			return f.Path, domain.ErrChecksumMismatch
		}
	}
	return "", nil
}

func remotePeer(conn net.Conn) domain.PeerAddr {
	host, portStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return domain.PeerAddr{Address: conn.RemoteAddr().String()}
	}
	port, _ := strconv.Atoi(portStr)
	return domain.PeerAddr{Address: host, Port: port}
}
