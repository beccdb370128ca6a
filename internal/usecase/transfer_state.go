package usecase

import (
	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

// TransferView combines the session state with its live progress counters.
type TransferView struct {
	domain.SessionState
	Progress *domain.ProgressSnapshot `json:"progress,omitempty"`
}

type TransferState struct {
	Engine ports.Engine
}

func (uc TransferState) Get(id domain.SessionID) (TransferView, error) {
	state, err := uc.Engine.SessionState(id)
	if err != nil {
		return TransferView{}, err
	}
	return uc.view(state), nil
}

func (uc TransferState) List() []TransferView {
	states := uc.Engine.ListSessions()
	views := make([]TransferView, 0, len(states))
	for _, state := range states {
		views = append(views, uc.view(state))
	}
	return views
}

func (uc TransferState) view(state domain.SessionState) TransferView {
	view := TransferView{SessionState: state}
	if snapshot, ok := uc.Engine.Progress(state.ID); ok {
		view.Progress = &snapshot
	}
	return view
}
