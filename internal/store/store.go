// ABOUTME: Store interface and errors shared by the file, SQLite and mock backends
// ABOUTME: Mutations on channels, users and the password ledger, plus read snapshots

package store

import (
	"context"
	"errors"

	"github.com/FaCsaba/SmellyBot/internal/schema"
)

// ErrNotFound is returned when a requested user does not exist
var ErrNotFound = errors.New("not found")

// ErrPersist wraps every failure to write state to the backing storage
var ErrPersist = errors.New("persisting state")

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// ErrChannelKindConflict is returned when a channel is registered as one kind
// while already registered as the other
var ErrChannelKindConflict = errors.New("channel already registered with the other kind")

// ErrDuplicatePassword is returned when a password for the same message is already in the ledger
var ErrDuplicatePassword = errors.New("password already registered for message")

// UpdateFunc computes a user's next value from its current one. exists is
// false for users never seen before, in which case current is the zero User.
// Returning write=false leaves the store untouched.
type UpdateFunc func(current schema.User, exists bool) (next schema.User, write bool)

// Store defines the persistence contract for the bot's state
type Store interface {
	// Reads
	Snapshot(ctx context.Context) (*schema.State, error)
	Channels(ctx context.Context, kind schema.ChannelKind) ([]schema.ChannelID, error)
	GetUser(ctx context.Context, id schema.UserID) (schema.User, error)
	ListUsers(ctx context.Context) ([]schema.User, error)
	ListPasswords(ctx context.Context) ([]schema.PasswordEntry, error)

	// Channel registries
	RegisterChannel(ctx context.Context, kind schema.ChannelKind, id schema.ChannelID) error

	// Users
	UpsertUser(ctx context.Context, user schema.User) error
	UpdateUser(ctx context.Context, id schema.UserID, fn UpdateFunc) (schema.User, bool, error)

	// Password ledger
	AppendPassword(ctx context.Context, entry schema.PasswordEntry) error
	RemovePassword(ctx context.Context, messageID schema.MessageID) (int, error)

	// Close releases any resources held by the store
	Close() error
}
