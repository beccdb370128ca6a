package usecase

import (
	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

type ListPeers struct {
	Directory ports.PeerDirectory
}

func (uc ListPeers) Execute() []domain.PeerRecord {
	return uc.Directory.Snapshot()
}
