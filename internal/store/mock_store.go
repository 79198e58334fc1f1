// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory state with the same semantics as FileStore and persist-failure injection

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/FaCsaba/SmellyBot/internal/schema"
)

// errInjected is the cause reported when FailPersist is set.
var errInjected = errors.New("injected persist failure")

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu    sync.Mutex
	state *schema.State

	// FailPersist makes every mutation fail with ErrPersist and leave the state unchanged.
	FailPersist bool

	// Persists counts successful mutations.
	Persists int
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{state: schema.NewState()}
}

// NewMockStoreFrom creates a MockStore seeded with a copy of st.
func NewMockStoreFrom(st *schema.State) *MockStore {
	return &MockStore{state: st.Clone()}
}

func (m *MockStore) mutate(ctx context.Context, fn func(st *schema.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	if m.FailPersist {
		return fmt.Errorf("%w: %w", ErrPersist, errInjected)
	}
	m.state = next
	m.Persists++
	return nil
}

// Snapshot returns a deep copy of the state.
func (m *MockStore) Snapshot(ctx context.Context) (*schema.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

// Channels returns the registry for kind.
func (m *MockStore) Channels(ctx context.Context, kind schema.ChannelKind) ([]schema.ChannelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Registry(kind)), nil
}

// GetUser retrieves a user by id.
func (m *MockStore) GetUser(ctx context.Context, id schema.UserID) (schema.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.state.Users[id]
	if !ok {
		return schema.User{}, ErrNotFound
	}
	return u, nil
}

// ListUsers returns all users ordered by id.
func (m *MockStore) ListUsers(ctx context.Context) ([]schema.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedUsers(m.state), nil
}

// ListPasswords returns the ledger in insertion order.
func (m *MockStore) ListPasswords(ctx context.Context) ([]schema.PasswordEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Passwords), nil
}

// RegisterChannel adds id to the registry for kind.
func (m *MockStore) RegisterChannel(ctx context.Context, kind schema.ChannelKind, id schema.ChannelID) error {
	return m.mutate(ctx, func(st *schema.State) error {
		return registerChannel(st, kind, id)
	})
}

// UpsertUser creates or replaces a user.
func (m *MockStore) UpsertUser(ctx context.Context, user schema.User) error {
	return m.mutate(ctx, func(st *schema.State) error {
		st.Users[user.ID] = user
		return nil
	})
}

// UpdateUser applies fn to the user keyed by id.
func (m *MockStore) UpdateUser(ctx context.Context, id schema.UserID, fn UpdateFunc) (schema.User, bool, error) {
	var (
		result  schema.User
		written bool
	)
	err := m.mutate(ctx, func(st *schema.State) error {
		u, err := updateUser(st, id, fn)
		result = u
		written = err == nil
		return err
	})
	if err != nil {
		return schema.User{}, false, err
	}
	return result, written, nil
}

// AppendPassword adds entry to the ledger.
func (m *MockStore) AppendPassword(ctx context.Context, entry schema.PasswordEntry) error {
	return m.mutate(ctx, func(st *schema.State) error {
		return appendPassword(st, entry)
	})
}

// RemovePassword drops every ledger entry for messageID.
func (m *MockStore) RemovePassword(ctx context.Context, messageID schema.MessageID) (int, error) {
	var removed int
	err := m.mutate(ctx, func(st *schema.State) error {
		removed = removePassword(st, messageID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time assertion that MockStore implements Store.
var _ Store = (*MockStore)(nil)
