package discovery

import (
	"log/slog"
	"testing"
	"time"

	"lanshare/internal/domain"
	"lanshare/internal/protocol"
)

func newTestService(clock *time.Time) *Service {
	s := New(Config{
		InstanceID:    "self",
		DisplayName:   "me",
		TransferPort:  12345,
		DiscoveryPort: 5000,
		Interval:      5 * time.Second,
	}, nil, slog.Default())
	s.now = func() time.Time { return *clock }
	return s
}

func TestObserveAddsAndUpdatesPeers(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(&clock)

	s.observe(protocol.Announcement{InstanceID: "p1", Name: "laptop", Port: 12345, Status: domain.PeerIdle}, "192.168.1.10", clock)

	peers := s.Snapshot()
	if len(peers) != 1 {
		t.Fatalf("got %d peers, want 1", len(peers))
	}
	if peers[0].Name != "laptop" || peers[0].Address != "192.168.1.10" {
		t.Fatalf("unexpected record: %+v", peers[0])
	}

	// Same address+port updates in place, including status.
	clock = clock.Add(time.Second)
	s.observe(protocol.Announcement{InstanceID: "p1", Name: "laptop", Port: 12345, Status: domain.PeerBusy}, "192.168.1.10", clock)

	peers = s.Snapshot()
	if len(peers) != 1 {
		t.Fatalf("got %d peers after update, want 1", len(peers))
	}
	if peers[0].Status != domain.PeerBusy || !peers[0].LastSeen.Equal(clock) {
		t.Fatalf("record not updated in place: %+v", peers[0])
	}
}

func TestObserveFiltersSelf(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(&clock)

	s.observe(protocol.Announcement{InstanceID: "self", Name: "me", Port: 12345}, "192.168.1.2", clock)

	if peers := s.Snapshot(); len(peers) != 0 {
		t.Fatalf("self announcement should be filtered, got %+v", peers)
	}
}

func TestSnapshotPrunesSilentPeers(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(&clock)

	s.observe(protocol.Announcement{InstanceID: "p1", Name: "laptop", Port: 12345}, "192.168.1.10", clock)
	s.observe(protocol.Announcement{InstanceID: "p2", Name: "desktop", Port: 12345}, "192.168.1.11", clock)

	// Only p2 keeps announcing.
	clock = clock.Add(9 * time.Second)
	s.observe(protocol.Announcement{InstanceID: "p2", Name: "desktop", Port: 12345}, "192.168.1.11", clock)

	// Past 2x interval of p1's last announcement, it must be gone without
	// any explicit disconnect.
	clock = clock.Add(2 * time.Second)
	peers := s.Snapshot()
	if len(peers) != 1 {
		t.Fatalf("got %d peers, want 1: %+v", len(peers), peers)
	}
	if peers[0].Name != "desktop" {
		t.Fatalf("wrong survivor: %+v", peers[0])
	}
}
