package usecase

import (
	"errors"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

type CancelTransfer struct {
	Engine ports.Engine
}

func (uc CancelTransfer) Execute(id domain.SessionID) error {
	if err := uc.Engine.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapEngine(err)
	}
	return nil
}

type DecideRequest struct {
	Engine ports.Engine
}

func (uc DecideRequest) Execute(id domain.RequestID, accept bool) error {
	if err := uc.Engine.Decide(id, accept); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapEngine(err)
	}
	return nil
}
