package usecase

import (
	"context"
	"fmt"

	"lanshare/internal/domain"
	"lanshare/internal/domain/ports"
)

type fakeEngine struct {
	sessions  map[domain.SessionID]domain.SessionState
	progress  map[domain.SessionID]domain.ProgressSnapshot
	settings  domain.ReceiverSettings
	sendErr   error
	cancelled []domain.SessionID
	decided   map[domain.RequestID]bool
	acked     []domain.SessionID
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sessions: make(map[domain.SessionID]domain.SessionState),
		progress: make(map[domain.SessionID]domain.ProgressSnapshot),
		decided:  make(map[domain.RequestID]bool),
	}
}

func (f *fakeEngine) Send(_ context.Context, peer domain.PeerAddr, paths []string, _ ports.SendOptions) (domain.SessionState, error) {
	if f.sendErr != nil {
		return domain.SessionState{}, f.sendErr
	}
	state := domain.SessionState{
		ID:        domain.SessionID(fmt.Sprintf("s%d", len(f.sessions)+1)),
		Direction: domain.DirectionSend,
		Peer:      peer,
		Status:    domain.SessionNegotiating,
	}
	f.sessions[state.ID] = state
	return state, nil
}

func (f *fakeEngine) StartReceiving(context.Context) error { return nil }

func (f *fakeEngine) Cancel(id domain.SessionID) error {
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeEngine) SessionState(id domain.SessionID) (domain.SessionState, error) {
	state, ok := f.sessions[id]
	if !ok {
		return domain.SessionState{}, domain.ErrNotFound
	}
	return state, nil
}

func (f *fakeEngine) ListSessions() []domain.SessionState {
	states := make([]domain.SessionState, 0, len(f.sessions))
	for _, state := range f.sessions {
		states = append(states, state)
	}
	return states
}

func (f *fakeEngine) Progress(id domain.SessionID) (domain.ProgressSnapshot, bool) {
	snapshot, ok := f.progress[id]
	return snapshot, ok
}

func (f *fakeEngine) PendingRequests() []domain.AcceptRequest { return nil }

func (f *fakeEngine) Decide(id domain.RequestID, accept bool) error {
	f.decided[id] = accept
	return nil
}

func (f *fakeEngine) Acknowledge(id domain.SessionID) error {
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.sessions, id)
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeEngine) ReceiverSettings() domain.ReceiverSettings { return f.settings }

func (f *fakeEngine) SetReceiverSettings(s domain.ReceiverSettings) { f.settings = s }

func (f *fakeEngine) Close() error { return nil }

type fakeHistoryRepo struct {
	records   []domain.TransferRecord
	recordErr error
}

func (f *fakeHistoryRepo) Record(_ context.Context, r domain.TransferRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, r)
	return nil
}

func (f *fakeHistoryRepo) ListRecent(_ context.Context, limit int) ([]domain.TransferRecord, error) {
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

type fakeDirectory struct {
	peers []domain.PeerRecord
}

func (f *fakeDirectory) Snapshot() []domain.PeerRecord { return f.peers }

type fakeSettingsRepo struct {
	settings *domain.ReceiverSettings
	putErr   error
}

func (f *fakeSettingsRepo) GetReceiverSettings(context.Context) (domain.ReceiverSettings, bool, error) {
	if f.settings == nil {
		return domain.ReceiverSettings{}, false, nil
	}
	return *f.settings, true, nil
}

func (f *fakeSettingsRepo) PutReceiverSettings(_ context.Context, s domain.ReceiverSettings) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.settings = &s
	return nil
}
