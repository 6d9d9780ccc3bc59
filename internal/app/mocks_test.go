package app

import (
	"context"
	"slices"
	"sync"

	"github.com/pscheid92/fanout/internal/domain"
)

// --- Mock implementations ---

type mockStore struct {
	mu      sync.Mutex
	ids     map[string]struct{}
	order   []string
	puts    int
	deletes []string

	putErr    error
	deleteErr error
	scanErr   error
}

func newMockStore(ids ...string) *mockStore {
	s := &mockStore{ids: make(map[string]struct{})}
	for _, id := range ids {
		s.ids[id] = struct{}{}
		s.order = append(s.order, id)
	}
	return s
}

func (m *mockStore) Put(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.ids[connectionID]; !ok {
		m.order = append(m.order, connectionID)
	}
	m.ids[connectionID] = struct{}{}
	return nil
}

func (m *mockStore) Delete(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, connectionID)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.ids, connectionID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == connectionID })
	return nil
}

func (m *mockStore) Scan(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	return slices.Clone(m.order), nil
}

func (m *mockStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

func (m *mockStore) deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.deletes)
}

type pushResult struct {
	status domain.DeliveryStatus
	err    error
}

type pushedMessage struct {
	ConnectionID string
	Data         string
}

// mockChannel answers DeliveryOK unless a result is configured for the connection.
type mockChannel struct {
	mu      sync.Mutex
	results map[string]pushResult
	pushes  []pushedMessage
	onPush  func(ctx context.Context, connectionID string)
}

func newMockChannel() *mockChannel {
	return &mockChannel{results: make(map[string]pushResult)}
}

func (m *mockChannel) with(connectionID string, status domain.DeliveryStatus, err error) *mockChannel {
	m.results[connectionID] = pushResult{status: status, err: err}
	return m
}

func (m *mockChannel) Push(ctx context.Context, connectionID string, data []byte) (domain.DeliveryStatus, error) {
	if m.onPush != nil {
		m.onPush(ctx, connectionID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, pushedMessage{ConnectionID: connectionID, Data: string(data)})
	if r, ok := m.results[connectionID]; ok {
		return r.status, r.err
	}
	return domain.DeliveryOK, nil
}

func (m *mockChannel) attempts() []pushedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.pushes)
}

func (m *mockChannel) attemptedIDs() []string {
	var ids []string
	for _, p := range m.attempts() {
		ids = append(ids, p.ConnectionID)
	}
	slices.Sort(ids)
	return ids
}

type mockResolver struct {
	channel   domain.DeliveryChannel
	err       error
	endpoints []domain.Endpoint
}

func (m *mockResolver) Channel(endpoint domain.Endpoint) (domain.DeliveryChannel, error) {
	m.endpoints = append(m.endpoints, endpoint)
	if m.err != nil {
		return nil, m.err
	}
	return m.channel, nil
}
