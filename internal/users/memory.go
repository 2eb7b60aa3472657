package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for development and tests. Atomic
// holds the write lock for the whole callback, so transactions are serial.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	profiles map[uuid.UUID]*Profile
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*Account),
		profiles: make(map[uuid.UUID]*Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ExistsUsername(_ context.Context, username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findByUsername(username) != nil, nil
}

func (m *MemoryStore) ExistsEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{
		store:    m,
		accounts: make(map[uuid.UUID]*Account),
		profiles: make(map[uuid.UUID]*Profile),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, a := range tx.accounts {
		if _, ok := tx.profiles[id]; !ok {
			return errors.New("memory store: account without profile")
		}
		m.accounts[id] = a
	}
	for id, p := range tx.profiles {
		m.profiles[id] = p
	}
	return nil
}

func (m *MemoryStore) GetByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.findByUsername(username)
	if a == nil {
		return nil, ErrNotFound
	}
	return m.snapshot(a), nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		all = append(all, m.snapshot(a))
	}
	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].Profile.CreatedAt, all[j].Profile.CreatedAt
		if ci.Equal(cj) {
			return all[i].Username < all[j].Username
		}
		return ci.Before(cj)
	})

	if offset >= len(all) {
		return []*Account{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryStore) SetVerified(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.findByUsername(username)
	if a == nil {
		return nil, ErrNotFound
	}
	p := m.profiles[a.ID]
	if !p.IsVerified {
		p.IsVerified = true
		p.ModifiedAt = m.now()
	}
	return m.snapshot(a), nil
}

func (m *MemoryStore) Delete(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.findByUsername(username)
	if a == nil {
		return nil, ErrNotFound
	}
	out := m.snapshot(a)
	delete(m.accounts, a.ID)
	delete(m.profiles, a.ID)
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Count returns the number of stored accounts and profiles.
func (m *MemoryStore) Count() (accounts, profiles int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts), len(m.profiles)
}

// findByUsername must be called with mu held.
func (m *MemoryStore) findByUsername(username string) *Account {
	for _, a := range m.accounts {
		if a.Username == username {
			return a
		}
	}
	return nil
}

// snapshot must be called with mu held.
func (m *MemoryStore) snapshot(a *Account) *Account {
	cp := *a
	if p, ok := m.profiles[a.ID]; ok {
		cp.Profile = *p
	}
	return &cp
}

// memoryTx stages writes until Atomic commits them. It runs under the
// store's write lock.
type memoryTx struct {
	store    *MemoryStore
	accounts map[uuid.UUID]*Account
	profiles map[uuid.UUID]*Profile
}

func (t *memoryTx) CreateAccount(_ context.Context, a *Account) error {
	var conflicts []string
	taken := func(match func(*Account) bool) bool {
		for _, existing := range t.store.accounts {
			if match(existing) {
				return true
			}
		}
		for _, staged := range t.accounts {
			if match(staged) {
				return true
			}
		}
		return false
	}
	if taken(func(x *Account) bool { return x.Username == a.Username }) {
		conflicts = append(conflicts, "username")
	}
	if taken(func(x *Account) bool { return strings.EqualFold(x.Email, a.Email) }) {
		conflicts = append(conflicts, "email")
	}
	if len(conflicts) > 0 {
		return &ConflictError{Fields: conflicts}
	}

	a.ID = uuid.New()
	a.CreatedAt = t.store.now()
	cp := *a
	t.accounts[a.ID] = &cp
	return nil
}

func (t *memoryTx) CreateProfile(_ context.Context, accountID uuid.UUID, p *Profile) error {
	if _, ok := t.accounts[accountID]; !ok {
		if _, ok := t.store.accounts[accountID]; !ok {
			return ErrNotFound
		}
	}
	if _, ok := t.store.profiles[accountID]; ok {
		return errors.New("memory store: profile already exists")
	}
	if _, ok := t.profiles[accountID]; ok {
		return errors.New("memory store: profile already exists")
	}

	now := t.store.now()
	p.AccountID = accountID
	p.CreatedAt = now
	p.ModifiedAt = now
	cp := *p
	t.profiles[accountID] = &cp
	return nil
}
