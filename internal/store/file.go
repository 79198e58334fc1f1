// ABOUTME: JSON file implementation of the Store interface
// ABOUTME: Loads with schema migration, writes the full document through on every mutation

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/FaCsaba/SmellyBot/internal/schema"
)

// DefaultPath is where the bot keeps its state file unless configured otherwise.
const DefaultPath = "db/smelly.db"

// FileStore implements Store on a single JSON document.
type FileStore struct {
	path   string
	perm   os.FileMode
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	state  *schema.State
	closed bool
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger.With("component", "store")
	}
}

// WithFileMode sets the permissions of the state file. Defaults to 0600.
func WithFileMode(perm os.FileMode) FileOption {
	return func(s *FileStore) {
		s.perm = perm
	}
}

// NewFileStore creates a FileStore backed by the file at path and loads it.
// Parent directories are created if needed. It fails when the directory
// cannot be created, the file exists but cannot be read, or the file carries
// an unsupported schema version.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		perm:   0o600,
		logger: slog.Default().With("component", "store"),
		now:    time.Now,
		state:  schema.NewState(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	if err := s.Load(); err != nil {
		return nil, err
	}

	s.logger.Info("file store initialized", "path", path)
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load replaces the in-memory state with the contents of the backing file.
// A missing file yields the empty state and an undecodable one is moved aside
// first. A file that exists but cannot be read, or carries an unsupported
// version, is returned as an error and leaves the current state untouched.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no state file, starting empty", "path", s.path)
		s.state = schema.NewState()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	state, err := schema.Decode(raw)
	if errors.Is(err, schema.ErrUnsupportedVersion) {
		return fmt.Errorf("loading %s: %w", s.path, err)
	}
	if err != nil {
		s.logger.Warn("state file corrupt, starting empty", "path", s.path, "error", err)
		s.quarantineLocked()
		s.state = schema.NewState()
		return nil
	}

	s.logger.Info("loaded state",
		"path", s.path,
		"channels", len(state.Channels),
		"decrement_channels", len(state.DecrementChannels),
		"users", len(state.Users),
		"passwords", len(state.Passwords),
	)
	s.state = state
	return nil
}

// quarantineLocked moves an undecodable state file aside so the next persist
// does not destroy it. Must be called with mu held.
func (s *FileStore) quarantineLocked() {
	dest := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, dest); err != nil {
		s.logger.Error("failed to move corrupt state file aside", "path", s.path, "error", err)
		return
	}
	s.logger.Warn("moved corrupt state file aside", "path", s.path, "moved_to", dest)
}

// mutate applies fn to a copy of the state, persists the copy and only then
// makes it current. If fn returns errNoChange nothing is written.
func (s *FileStore) mutate(ctx context.Context, fn func(st *schema.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	next := s.state.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}

	if err := s.persistLocked(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// persistLocked writes st to the backing file. Must be called with mu held.
func (s *FileStore) persistLocked(st *schema.State) error {
	data, err := schema.Encode(st)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := writeFileAtomic(s.path, data, s.perm); err != nil {
		s.logger.Error("failed to persist state", "path", s.path, "error", err)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.logger.Debug("persisted state", "path", s.path, "bytes", len(data))
	return nil
}

// Flush writes the current state to disk even if nothing changed.
func (s *FileStore) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return s.persistLocked(s.state)
}

// Snapshot returns a deep copy of the current state.
func (s *FileStore) Snapshot(ctx context.Context) (*schema.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

// Channels returns the registry for kind in registration order.
func (s *FileStore) Channels(ctx context.Context, kind schema.ChannelKind) ([]schema.ChannelID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Registry(kind)), nil
}

// GetUser returns the user keyed by id or ErrNotFound.
func (s *FileStore) GetUser(ctx context.Context, id schema.UserID) (schema.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.Users[id]
	if !ok {
		return schema.User{}, ErrNotFound
	}
	return u, nil
}

// ListUsers returns all users ordered by id.
func (s *FileStore) ListUsers(ctx context.Context) ([]schema.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedUsers(s.state), nil
}

// ListPasswords returns the ledger in insertion order.
func (s *FileStore) ListPasswords(ctx context.Context) ([]schema.PasswordEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Passwords), nil
}

// RegisterChannel adds id to the registry for kind and persists.
func (s *FileStore) RegisterChannel(ctx context.Context, kind schema.ChannelKind, id schema.ChannelID) error {
	s.logger.Info("registering channel", "kind", kind, "channel", id)
	return s.mutate(ctx, func(st *schema.State) error {
		return registerChannel(st, kind, id)
	})
}

// UpsertUser creates or replaces the user keyed by user.ID and persists.
func (s *FileStore) UpsertUser(ctx context.Context, user schema.User) error {
	s.logger.Info("upserting user", "user", user.ID, "count", user.Count)
	return s.mutate(ctx, func(st *schema.State) error {
		st.Users[user.ID] = user
		return nil
	})
}

// UpdateUser applies fn to the user keyed by id under the store lock and
// persists the result if fn asks for a write.
func (s *FileStore) UpdateUser(ctx context.Context, id schema.UserID, fn UpdateFunc) (schema.User, bool, error) {
	var (
		result  schema.User
		written bool
	)
	err := s.mutate(ctx, func(st *schema.State) error {
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

// AppendPassword adds entry to the ledger and persists.
func (s *FileStore) AppendPassword(ctx context.Context, entry schema.PasswordEntry) error {
	s.logger.Info("adding password", "user", entry.UserID, "message", entry.MessageID)
	return s.mutate(ctx, func(st *schema.State) error {
		return appendPassword(st, entry)
	})
}

// RemovePassword drops every ledger entry for messageID and persists.
func (s *FileStore) RemovePassword(ctx context.Context, messageID schema.MessageID) (int, error) {
	s.logger.Info("removing password", "message", messageID)
	var removed int
	err := s.mutate(ctx, func(st *schema.State) error {
		removed = removePassword(st, messageID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close writes the state one last time and rejects further mutations.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing file store", "path", s.path)
	return s.persistLocked(s.state)
}

// Compile-time assertion that FileStore implements Store.
var _ Store = (*FileStore)(nil)
