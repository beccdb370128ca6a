package ports

import (
	"context"

	"lanshare/internal/domain"
)

type HistoryRepository interface {
	Record(ctx context.Context, r domain.TransferRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.TransferRecord, error)
}

type SettingsRepository interface {
	GetReceiverSettings(ctx context.Context) (domain.ReceiverSettings, bool, error)
	PutReceiverSettings(ctx context.Context, s domain.ReceiverSettings) error
}
