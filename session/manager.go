package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-session/exchange"
	apperrors "github.com/jrsteele09/go-admin-session/internal/errors"
	"github.com/jrsteele09/go-admin-session/token"
	"github.com/jrsteele09/go-admin-session/token/refresh"
	"github.com/rs/zerolog/log"
)

const storeTimeout = 5 * time.Second

// Manager maps session IDs to live sessions so each ID has a single state machine
// in this process. Sessions are loaded from the store on first use and every
// transition is written back; signing out deletes the record.
type Manager struct {
	store     Store
	exchanger exchange.Exchanger
	executor  *refresh.Executor
	policy    *token.Policy
	opts      []Option

	lock sync.Mutex
	live map[string]*Session
}

func NewManager(store Store, exchanger exchange.Exchanger, executor *refresh.Executor, policy *token.Policy, opts ...Option) *Manager {
	return &Manager{
		store:     store,
		exchanger: exchanger,
		executor:  executor,
		policy:    policy,
		opts:      opts,
		live:      make(map[string]*Session),
	}
}

// New creates an unauthenticated session with a fresh ID. It is tracked once it signs in.
func (m *Manager) New() *Session {
	return m.newSession(uuid.NewString(), Unauthenticated{})
}

// Get returns the live session for id, loading it from the store when needed
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperrors.ErrSessionNotFound
	}

	m.lock.Lock()
	s, ok := m.live[id]
	m.lock.Unlock()
	if ok {
		return s, nil
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	state := rec.State()
	if _, ok := state.(Unauthenticated); ok {
		return nil, apperrors.ErrSessionNotFound
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if s, ok := m.live[id]; ok {
		return s, nil
	}
	s = m.newSession(id, state)
	m.live[id] = s
	return s, nil
}

// Len is the number of live sessions
func (m *Manager) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.live)
}

func (m *Manager) newSession(id string, state State) *Session {
	opts := append([]Option{WithState(state)}, m.opts...)
	opts = append(opts, WithObserver(m.persist))
	return New(id, m.exchanger, m.executor, m.policy, opts...)
}

// persist runs under the session lock, so writes for one session are ordered
func (m *Manager) persist(s *Session, _, to State) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rec, ok := RecordOf(to, m.policy.Now())
	m.lock.Lock()
	if ok {
		m.live[s.id] = s
	} else {
		delete(m.live, s.id)
	}
	m.lock.Unlock()

	if !ok {
		if err := m.store.Delete(ctx, s.id); err != nil {
			log.Err(err).Str("session_id", s.id).Msg("Failed to delete session record")
		}
		return
	}
	if err := m.store.Put(ctx, s.id, rec); err != nil {
		log.Err(err).Str("session_id", s.id).Msg("Failed to write session record")
	}
}
