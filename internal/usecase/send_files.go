package usecase

import (
	"context"
	"fmt"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

type SendFiles struct {
	Engine ports.Engine
}

type SendFilesInput struct {
	Peer        domain.PeerAddr
	Paths       []string
	Parallelism int
}

func (uc SendFiles) Execute(ctx context.Context, input SendFilesInput) (domain.SessionState, error) {
	if input.Peer.Address == "" || input.Peer.Port <= 0 {
		return domain.SessionState{}, fmt.Errorf("%w: peer address and port are required", ErrValidation)
	}
	if len(input.Paths) == 0 {
		return domain.SessionState{}, fmt.Errorf("%w: at least one path is required", ErrValidation)
	}
	if input.Parallelism < 0 {
		return domain.SessionState{}, fmt.Errorf("%w: parallelism must not be negative", ErrValidation)
	}

	state, err := uc.Engine.Send(ctx, input.Peer, input.Paths, ports.SendOptions{Parallelism: input.Parallelism})
	if err != nil {
		return domain.SessionState{}, wrapEngine(err)
	}
	return state, nil
}
