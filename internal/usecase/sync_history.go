package usecase

import (
	"context"
	"log/slog"
	"time"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

// SyncHistory drains terminal sessions from the engine into the history
// repository. A session is acknowledged only after its record is persisted,
// so a repository outage never loses history.
type SyncHistory struct {
	Engine   ports.Engine
	Repo     ports.HistoryRepository
	Logger   *slog.Logger
	Interval time.Duration
}

func (s SyncHistory) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}

func (s SyncHistory) Sync(ctx context.Context) {
	for _, state := range s.Engine.ListSessions() {
		if !state.Status.Terminal() {
			continue
		}

		record := domain.TransferRecord{
			ID:         state.ID,
			Direction:  state.Direction,
			Peer:       state.Peer,
			PeerName:   state.PeerName,
			FileCount:  len(state.Files),
			TotalBytes: state.TotalBytes,
			Status:     state.Status,
			Reason:     state.Reason,
			Duration:   state.UpdatedAt.Sub(state.CreatedAt),
			FinishedAt: state.UpdatedAt,
		}
		if s.Repo != nil {
			if err := s.Repo.Record(ctx, record); err != nil {
				s.Logger.Warn("history: persist record failed",
					slog.String("id", string(state.ID)),
					slog.String("error", err.Error()))
				continue
			}
		}

		if err := s.Engine.Acknowledge(state.ID); err != nil {
			s.Logger.Warn("history: acknowledge failed",
				slog.String("id", string(state.ID)),
				slog.String("error", err.Error()))
		}
	}
}
