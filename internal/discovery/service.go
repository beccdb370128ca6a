// Package discovery broadcasts this instance's presence on the local
// network segment and maintains a freshness-bounded table of peers doing
// the same.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"lanshare/internal/domain"
	"lanshare/internal/metrics"
	"lanshare/internal/protocol"
)

type Config struct {
	InstanceID    string
	DisplayName   string
	TransferPort  int
	DiscoveryPort int
	Interval      time.Duration
}

// StatusFunc reports the advertised availability at announce time.
type StatusFunc func() domain.PeerStatus

type Service struct {
	cfg      Config
	statusFn StatusFunc
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	peers map[string]domain.PeerRecord

	connMu       sync.Mutex
	listenConn   net.PacketConn
	announceConn net.PacketConn

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, statusFn StatusFunc, logger *slog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if statusFn == nil {
		statusFn = func() domain.PeerStatus { return domain.PeerIdle }
	}
	return &Service{
		cfg:      cfg,
		statusFn: statusFn,
		logger:   logger,
		now:      time.Now,
		peers:    make(map[string]domain.PeerRecord),
	}
}

// Start binds the discovery sockets and launches the announce and listen
// loops. It returns once both loops are running.
func (s *Service) Start(ctx context.Context) error {
	listenConn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", s.cfg.DiscoveryPort))
	if err != nil {
		return fmt.Errorf("bind discovery port %d: %w", s.cfg.DiscoveryPort, err)
	}
	announceConn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		listenConn.Close()
		return fmt.Errorf("open announce socket: %w", err)
	}

	s.connMu.Lock()
	s.listenConn = listenConn
	s.announceConn = announceConn
	s.connMu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.announceLoop(runCtx, announceConn)
	go s.listenLoop(runCtx, listenConn)

	s.logger.Info("discovery started",
		slog.Int("discoveryPort", s.cfg.DiscoveryPort),
		slog.Duration("interval", s.cfg.Interval),
	)
	return nil
}

// Stop shuts both loops down and waits for them to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	if s.listenConn != nil {
		s.listenConn.Close()
	}
	if s.announceConn != nil {
		s.announceConn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
}

func (s *Service) announceLoop(ctx context.Context, conn net.PacketConn) {
	defer s.wg.Done()

	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: s.cfg.DiscoveryPort}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.announceOnce(conn, dst)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.announceOnce(conn, dst)
		}
	}
}

func (s *Service) announceOnce(conn net.PacketConn, dst net.Addr) {
	datagram, err := protocol.EncodeAnnouncement(protocol.Announcement{
		InstanceID: s.cfg.InstanceID,
		Name:       s.cfg.DisplayName,
		Port:       s.cfg.TransferPort,
		Status:     s.statusFn(),
		Timestamp:  s.now().Unix(),
	})
	if err != nil {
		s.logger.Error("announce encode failed", slog.String("error", err.Error()))
		return
	}
	if _, err := conn.WriteTo(datagram, dst); err != nil {
		s.logger.Debug("announce send failed", slog.String("error", err.Error()))
	}
}

func (s *Service) listenLoop(ctx context.Context, conn net.PacketConn) {
	defer s.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Debug("discovery read failed", slog.String("error", err.Error()))
			continue
		}

		announcement, err := protocol.DecodeAnnouncement(buf[:n])
		if err != nil {
			// Malformed datagrams are dropped and never escalate.
			metrics.MalformedDatagramsTotal.Inc()
			s.logger.Debug("dropping malformed datagram",
				slog.String("from", src.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		addr := ""
		if udp, ok := src.(*net.UDPAddr); ok {
			addr = udp.IP.String()
		}
		s.observe(announcement, addr, s.now())
	}
}

// observe folds one valid announcement into the peer table. Announcements
// carrying our own instance id are ignored.
func (s *Service) observe(a protocol.Announcement, addr string, now time.Time) {
	if a.InstanceID != "" && a.InstanceID == s.cfg.InstanceID {
		return
	}
	record := domain.PeerRecord{
		Name:     a.Name,
		Address:  addr,
		Port:     a.Port,
		Status:   a.Status,
		Version:  a.Version,
		LastSeen: now,
	}

	s.mu.Lock()
	s.peers[record.Key()] = record
	s.mu.Unlock()
}

// Snapshot returns the current peer table, pruning entries that have been
// silent for more than twice the announce interval.
func (s *Service) Snapshot() []domain.PeerRecord {
	cutoff := s.now().Add(-2 * s.cfg.Interval)

	s.mu.Lock()
	records := make([]domain.PeerRecord, 0, len(s.peers))
	for key, record := range s.peers {
		if record.LastSeen.Before(cutoff) {
			delete(s.peers, key)
			continue
		}
		records = append(records, record)
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records
}
