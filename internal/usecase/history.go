package usecase

import (
	"context"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

const defaultHistoryLimit = 50

type GetHistory struct {
	Repo ports.HistoryRepository
}

func (uc GetHistory) Execute(ctx context.Context, limit int) ([]domain.TransferRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	records, err := uc.Repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, wrapRepo(err)
	}
	return records, nil
}
