package transfer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(port int) Config {
	return Config{
		DisplayName:          "tester",
		TransferPort:         port,
		BufferSize:           4 << 10,
		IdleTimeout:          2 * time.Second,
		DialTimeout:          2 * time.Second,
		MaxWorkers:           3,
		MinChunkBytes:        1 << 10,
		MultiStreamThreshold: 1 << 40,
		DecisionTimeout:      2 * time.Second,
	}
}

func writeTestFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitTerminal(t *testing.T, e *Engine, id domain.SessionID) domain.SessionState {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		state, err := e.SessionState(id)
		if err != nil {
			t.Fatalf("SessionState: %v", err)
		}
		if state.Status.Terminal() {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal state")
	return domain.SessionState{}
}

func waitReceiverTerminal(t *testing.T, e *Engine) domain.SessionState {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		for _, state := range e.ListSessions() {
			if state.Status.Terminal() {
				return state
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("receiver session never reached a terminal state")
	return domain.SessionState{}
}

func startReceiver(t *testing.T, cfg Config, settings domain.ReceiverSettings) *Engine {
	t.Helper()
	receiver := New(cfg, settings, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	if err := receiver.StartReceiving(ctx); err != nil {
		cancel()
		t.Fatalf("StartReceiving: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		receiver.Close()
	})
	return receiver
}

func TestTransferSingleStream(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	fileA := writeTestFile(t, srcDir, "a.txt", 10<<10)
	fileB := writeTestFile(t, srcDir, "empty.bin", 0)

	receiver := startReceiver(t, testConfig(42511), domain.ReceiverSettings{SaveDir: dstDir, AutoAccept: true})
	sender := New(testConfig(42519), domain.ReceiverSettings{}, testLogger())
	defer sender.Close()

	state, err := sender.Send(context.Background(), domain.PeerAddr{Address: "127.0.0.1", Port: 42511}, []string{fileA, fileB}, ports.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if state.Mode != domain.ModeSingleStream {
		t.Fatalf("mode = %q, want %q", state.Mode, domain.ModeSingleStream)
	}

	final := waitTerminal(t, sender, state.ID)
	if final.Status != domain.SessionCompleted {
		t.Fatalf("sender status = %q (reason %q), want completed", final.Status, final.Reason)
	}
	recvState := waitReceiverTerminal(t, receiver)
	if recvState.Status != domain.SessionCompleted {
		t.Fatalf("receiver status = %q (reason %q), want completed", recvState.Status, recvState.Reason)
	}

	want, _ := os.ReadFile(fileA)
	got, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	if err != nil {
		t.Fatalf("read received file: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("received file content differs from source")
	}
	if info, err := os.Stat(filepath.Join(dstDir, "empty.bin")); err != nil || info.Size() != 0 {
		t.Fatalf("empty file not received correctly: %v", err)
	}

	snapshot, ok := sender.Progress(state.ID)
	if !ok {
		t.Fatal("expected progress snapshot")
	}
	if snapshot.BytesTransferred != snapshot.TotalBytes {
		t.Fatalf("progress %d/%d, want complete", snapshot.BytesTransferred, snapshot.TotalBytes)
	}
}

func TestTransferMultiStream(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	big := writeTestFile(t, srcDir, "big.bin", 10<<10)

	receiver := startReceiver(t, testConfig(42521), domain.ReceiverSettings{SaveDir: dstDir, AutoAccept: true})

	senderCfg := testConfig(42529)
	senderCfg.MultiStreamThreshold = 4 << 10
	sender := New(senderCfg, domain.ReceiverSettings{}, testLogger())
	defer sender.Close()

	state, err := sender.Send(context.Background(), domain.PeerAddr{Address: "127.0.0.1", Port: 42521}, []string{big}, ports.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if state.Mode != domain.ModeMultiStream {
		t.Fatalf("mode = %q, want %q", state.Mode, domain.ModeMultiStream)
	}

	final := waitTerminal(t, sender, state.ID)
	if final.Status != domain.SessionCompleted {
		t.Fatalf("sender status = %q (reason %q), want completed", final.Status, final.Reason)
	}
	recvState := waitReceiverTerminal(t, receiver)
	if recvState.Status != domain.SessionCompleted {
		t.Fatalf("receiver status = %q (reason %q), want completed", recvState.Status, recvState.Reason)
	}

	want, _ := os.ReadFile(big)
	got, err := os.ReadFile(filepath.Join(dstDir, "big.bin"))
	if err != nil {
		t.Fatalf("read received file: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("chunked reassembly produced different content")
	}
}

func TestTransferRejected(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	file := writeTestFile(t, srcDir, "a.txt", 1<<10)

	receiver := startReceiver(t, testConfig(42531), domain.ReceiverSettings{SaveDir: dstDir, AutoAccept: false})
	sender := New(testConfig(42539), domain.ReceiverSettings{}, testLogger())
	defer sender.Close()

	state, err := sender.Send(context.Background(), domain.PeerAddr{Address: "127.0.0.1", Port: 42531}, []string{file}, ports.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(receiver.PendingRequests()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("accept request never surfaced")
		}
		time.Sleep(10 * time.Millisecond)
	}
	pending := receiver.PendingRequests()
	if pending[0].SessionID != state.ID {
		t.Fatalf("pending request session = %s, want %s", pending[0].SessionID, state.ID)
	}
	if err := receiver.Decide(pending[0].ID, false); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	final := waitTerminal(t, sender, state.ID)
	if final.Status != domain.SessionRejected || final.Reason != domain.ReasonRejectedByPeer {
		t.Fatalf("sender status = %q reason = %q, want rejected/rejected_by_peer", final.Status, final.Reason)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "a.txt")); !os.IsNotExist(err) {
		t.Fatal("rejected transfer must not create files")
	}
}

func TestTransferCancelled(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	file := writeTestFile(t, srcDir, "slow.bin", 512<<10)

	receiver := startReceiver(t, testConfig(42541), domain.ReceiverSettings{SaveDir: dstDir, AutoAccept: true})

	senderCfg := testConfig(42549)
	senderCfg.BandwidthLimit = 64 << 10
	sender := New(senderCfg, domain.ReceiverSettings{}, testLogger())
	defer sender.Close()

	state, err := sender.Send(context.Background(), domain.PeerAddr{Address: "127.0.0.1", Port: 42541}, []string{file}, ports.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		current, err := sender.SessionState(state.ID)
		if err != nil {
			t.Fatalf("SessionState: %v", err)
		}
		if current.Status == domain.SessionTransferring {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session stuck in %q before cancel", current.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := sender.Cancel(state.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	final := waitTerminal(t, sender, state.ID)
	if final.Status != domain.SessionCancelled || final.Reason != domain.ReasonCancelled {
		t.Fatalf("sender status = %q reason = %q, want cancelled/cancelled", final.Status, final.Reason)
	}

	recvState := waitReceiverTerminal(t, receiver)
	if recvState.Status != domain.SessionCancelled && recvState.Status != domain.SessionFailed {
		t.Fatalf("receiver status = %q, want cancelled or failed", recvState.Status)
	}
}

func TestAcknowledgeRemovesTerminalSession(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	file := writeTestFile(t, srcDir, "a.txt", 1<<10)

	receiver := startReceiver(t, testConfig(42551), domain.ReceiverSettings{SaveDir: dstDir, AutoAccept: true})
	_ = receiver
	sender := New(testConfig(42559), domain.ReceiverSettings{}, testLogger())
	defer sender.Close()

	state, err := sender.Send(context.Background(), domain.PeerAddr{Address: "127.0.0.1", Port: 42551}, []string{file}, ports.SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitTerminal(t, sender, state.ID)

	if err := sender.Acknowledge(state.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if _, err := sender.SessionState(state.ID); err == nil {
		t.Fatal("session still visible after acknowledge")
	}
	if _, ok := sender.Progress(state.ID); ok {
		t.Fatal("progress still visible after acknowledge")
	}
}
