package apihttp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lanshare/internal/domain"
)

func TestWebSocketBroadcastTransfers(t *testing.T) {
	engine := newStubEngine()
	engine.sessions["abc"] = domain.SessionState{ID: "abc", Status: domain.SessionTransferring}
	s := newTestServer(t, engine)

	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		defer resp.Body.Close()
	}

	// Give the hub a moment to register the client before broadcasting.
	time.Sleep(200 * time.Millisecond)
	s.BroadcastTransfers()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg struct {
		Type string            `json:"type"`
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "transfers" || len(msg.Data) != 1 {
		t.Fatalf("message = %s", payload)
	}
}

func waitClientCount(t *testing.T, h *wsHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.clientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d", want)
}

// The count is published by the hub goroutine, so Broadcast can consult it
// from any goroutine without touching the client map.
func TestHubClientCountTracksRegistration(t *testing.T) {
	h := newWSHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.run()

	if got := h.clientCount(); got != 0 {
		t.Fatalf("clientCount = %d, want 0", got)
	}

	// With nobody connected the broadcast is dropped before encoding.
	h.Broadcast("transfers", []string{"x"})
	select {
	case msg := <-h.broadcast:
		t.Fatalf("unexpected queued broadcast: %s", msg)
	default:
	}

	client := &wsClient{hub: h, send: make(chan []byte, 4)}
	h.register <- client
	waitClientCount(t, h, 1)

	h.Broadcast("transfers", []string{"x"})
	select {
	case <-client.send:
	case <-time.After(2 * time.Second):
		t.Fatal("registered client never received the broadcast")
	}

	h.unregister <- client
	waitClientCount(t, h, 0)
	h.Close()
}

func TestWSEndpointRejectsPlainGET(t *testing.T) {
	s := newTestServer(t, newStubEngine())
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatal("plain GET must not upgrade")
	}
}
