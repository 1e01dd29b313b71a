package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spektr-org/vizon/store"
)

// Manager owns every live session. Sessions share the Pipeline but no state.
type Manager struct {
	pipeline *Pipeline
	store    *store.Store
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore persists sessions, datasets and transcripts.
func WithStore(st *store.Store) ManagerOption {
	return func(m *Manager) { m.store = st }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager around p.
func NewManager(p *Pipeline, opts ...ManagerOption) *Manager {
	m := &Manager{
		pipeline: p,
		logger:   p.logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create starts a new, empty session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	s := newSession(id, m.pipeline, m.store, m.now)
	if m.store != nil {
		if err := m.store.CreateSession(ctx, id, s.created); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session created", zap.String("session", id))
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Delete removes the session with id and its persisted state.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if m.store != nil {
		if err := m.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	m.logger.Info("session deleted", zap.String("session", id))
	return nil
}

// List describes every session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore loads persisted sessions into memory. A session whose dataset
// cannot be rebuilt is kept empty and logged.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	infos, err := m.store.Sessions(ctx)
	if err != nil {
		return 0, err
	}

	restored := make(map[string]*Session, len(infos))
	for _, info := range infos {
		s := newSession(info.ID, m.pipeline, m.store, m.now)
		s.created, s.updated = info.CreatedAt, info.UpdatedAt
		restored[info.ID] = s
		if !info.HasDataset {
			continue
		}

		t, err := m.store.Dataset(ctx, info.ID)
		if err != nil {
			m.logger.Warn("restore dataset failed", zap.String("session", info.ID), zap.Error(err))
			continue
		}
		msgs, err := m.store.Messages(ctx, info.ID)
		if err != nil {
			m.logger.Warn("restore messages failed", zap.String("session", info.ID), zap.Error(err))
		}
		if err := s.restore(t, msgs, info.CreatedAt, info.UpdatedAt); err != nil {
			m.logger.Warn("restore dashboard failed", zap.String("session", info.ID), zap.Error(err))
		}
	}

	m.mu.Lock()
	for id, s := range restored {
		if _, live := m.sessions[id]; !live {
			m.sessions[id] = s
		}
	}
	m.mu.Unlock()

	m.logger.Info("sessions restored", zap.Int("count", len(restored)))
	return len(restored), nil
}
