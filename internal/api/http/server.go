// Package apihttp exposes the engine to local consumers over HTTP and
// WebSocket.
package apihttp

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lanshare/internal/domain/ports"
	"lanshare/internal/usecase"
)

type Server struct {
	engine         ports.Engine
	peers          ports.PeerDirectory
	historyRepo    ports.HistoryRepository
	settingsRepo   ports.SettingsRepository
	sendFiles      usecase.SendFiles
	cancelTransfer usecase.CancelTransfer
	decideRequest  usecase.DecideRequest
	transferState  usecase.TransferState
	listPeers      usecase.ListPeers
	getHistory     usecase.GetHistory
	updateSettings usecase.UpdateSettings
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithPeerDirectory(peers ports.PeerDirectory) ServerOption {
	return func(s *Server) {
		s.peers = peers
	}
}

func WithHistoryRepository(repo ports.HistoryRepository) ServerOption {
	return func(s *Server) {
		s.historyRepo = repo
	}
}

func WithSettingsRepository(repo ports.SettingsRepository) ServerOption {
	return func(s *Server) {
		s.settingsRepo = repo
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(engine ports.Engine, opts ...ServerOption) *Server {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.sendFiles = usecase.SendFiles{Engine: engine}
	s.cancelTransfer = usecase.CancelTransfer{Engine: engine}
	s.decideRequest = usecase.DecideRequest{Engine: engine}
	s.transferState = usecase.TransferState{Engine: engine}
	s.listPeers = usecase.ListPeers{Directory: s.peers}
	s.getHistory = usecase.GetHistory{Repo: s.historyRepo}
	s.updateSettings = usecase.UpdateSettings{Engine: engine, Repo: s.settingsRepo}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/peers", s.handlePeers)
	mux.HandleFunc("/transfers", s.handleTransfers)
	mux.HandleFunc("/transfers/", s.handleTransferByID)
	mux.HandleFunc("/requests", s.handleRequests)
	mux.HandleFunc("/requests/", s.handleRequestByID)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/settings/receiver", s.handleReceiverSettings)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "lanshare",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastTransfers pushes the current transfer views to every WebSocket
// client.
func (s *Server) BroadcastTransfers() {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast("transfers", s.transferState.List())
}

// BroadcastPeers pushes the current peer table to every WebSocket client.
func (s *Server) BroadcastPeers() {
	if s.wsHub == nil || s.peers == nil {
		return
	}
	s.wsHub.Broadcast("peers", s.peers.Snapshot())
}

// BroadcastRequests pushes the pending accept requests to every WebSocket
// client.
func (s *Server) BroadcastRequests() {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast("requests", s.engine.PendingRequests())
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
