package usecase

import (
	"context"
	"fmt"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

// UpdateSettings persists receiver settings and applies them to the running
// engine so the next inbound session observes them.
type UpdateSettings struct {
	Engine ports.Engine
	Repo   ports.SettingsRepository
}

func (uc UpdateSettings) Execute(ctx context.Context, s domain.ReceiverSettings) error {
	if s.SaveDir == "" {
		return fmt.Errorf("%w: saveDir is required", ErrValidation)
	}
	if uc.Repo != nil {
		if err := uc.Repo.PutReceiverSettings(ctx, s); err != nil {
			return wrapRepo(err)
		}
	}
	uc.Engine.SetReceiverSettings(s)
	return nil
}
