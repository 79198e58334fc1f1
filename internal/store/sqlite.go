// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Relational alternative to the JSON file with the same contract

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/FaCsaba/SmellyBot/internal/schema"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection serializes every read-modify-write and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS channels (
			id   TEXT PRIMARY KEY,
			kind TEXT NOT NULL,

			CHECK (kind IN ('increment', 'decrement'))
		);

		CREATE TABLE IF NOT EXISTS users (
			id     TEXT PRIMARY KEY,
			smelly INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS passwords (
			entry_id   TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			message_id TEXT NOT NULL UNIQUE,
			password   TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schemaSQL)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Snapshot assembles the full state from the tables.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*schema.State, error) {
	st := schema.NewState()

	var err error
	if st.Channels, err = s.Channels(ctx, schema.Increment); err != nil {
		return nil, err
	}
	if st.DecrementChannels, err = s.Channels(ctx, schema.Decrement); err != nil {
		return nil, err
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		st.Users[u.ID] = u
	}

	if st.Passwords, err = s.ListPasswords(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

// Channels returns the registry for kind in registration order.
func (s *SQLiteStore) Channels(ctx context.Context, kind schema.ChannelKind) ([]schema.ChannelID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM channels WHERE kind = ? ORDER BY rowid`, kind.String())
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	ids := []schema.ChannelID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		ids = append(ids, schema.ChannelID(id))
	}
	return ids, rows.Err()
}

// GetUser retrieves a user by id.
func (s *SQLiteStore) GetUser(ctx context.Context, id schema.UserID) (schema.User, error) {
	u, err := getUser(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.User{}, ErrNotFound
	}
	if err != nil {
		return schema.User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q queryRower, id schema.UserID) (schema.User, error) {
	u := schema.User{ID: id}
	err := q.QueryRowContext(ctx, `SELECT smelly FROM users WHERE id = ?`, string(id)).Scan(&u.Count)
	return u, err
}

// ListUsers returns all users ordered by id.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]schema.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, smelly FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []schema.User{}
	for rows.Next() {
		var u schema.User
		var id string
		if err := rows.Scan(&id, &u.Count); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.ID = schema.UserID(id)
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListPasswords returns the ledger in insertion order.
func (s *SQLiteStore) ListPasswords(ctx context.Context) ([]schema.PasswordEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, message_id, password FROM passwords ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying passwords: %w", err)
	}
	defer rows.Close()

	entries := []schema.PasswordEntry{}
	for rows.Next() {
		var userID, messageID, password string
		if err := rows.Scan(&userID, &messageID, &password); err != nil {
			return nil, fmt.Errorf("scanning password: %w", err)
		}
		entries = append(entries, schema.PasswordEntry{
			UserID:    schema.UserID(userID),
			MessageID: schema.MessageID(messageID),
			Password:  password,
		})
	}
	return entries, rows.Err()
}

// RegisterChannel adds id to the registry for kind.
func (s *SQLiteStore) RegisterChannel(ctx context.Context, kind schema.ChannelKind, id schema.ChannelID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT kind FROM channels WHERE id = ?`, string(id)).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("querying channel: %w", err)
		case existing == kind.String():
			return nil
		default:
			return fmt.Errorf("%w: %s is a %s channel", ErrChannelKindConflict, id, existing)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO channels (id, kind) VALUES (?, ?)`, string(id), kind.String())
		if err != nil {
			return fmt.Errorf("%w: inserting channel: %w", ErrPersist, err)
		}
		s.logger.Info("registered channel", "kind", kind, "channel", id)
		return nil
	})
}

// UpsertUser creates or replaces a user.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user schema.User) error {
	if err := upsertUser(ctx, s.db, user); err != nil {
		return fmt.Errorf("%w: upserting user: %w", ErrPersist, err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertUser(ctx context.Context, e execer, user schema.User) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO users (id, smelly) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET smelly = excluded.smelly
	`, string(user.ID), user.Count)
	return err
}

// UpdateUser applies fn to the user keyed by id inside a transaction.
func (s *SQLiteStore) UpdateUser(ctx context.Context, id schema.UserID, fn UpdateFunc) (schema.User, bool, error) {
	var (
		result  schema.User
		written bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getUser(ctx, tx, id)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			current, exists = schema.User{}, false
		} else if err != nil {
			return fmt.Errorf("querying user: %w", err)
		}

		next, write := fn(current, exists)
		if !write {
			result = current
			return nil
		}
		next.ID = id
		if err := upsertUser(ctx, tx, next); err != nil {
			return fmt.Errorf("%w: upserting user: %w", ErrPersist, err)
		}
		result, written = next, true
		return nil
	})
	if err != nil {
		return schema.User{}, false, err
	}
	return result, written, nil
}

// AppendPassword adds entry to the ledger.
func (s *SQLiteStore) AppendPassword(ctx context.Context, entry schema.PasswordEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertPassword(ctx, tx, entry)
	})
}

func insertPassword(ctx context.Context, tx *sql.Tx, entry schema.PasswordEntry) error {
	var exists int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM passwords WHERE message_id = ?`, string(entry.MessageID)).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicatePassword, entry.MessageID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("querying password: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passwords (entry_id, user_id, message_id, password)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), string(entry.UserID), string(entry.MessageID), entry.Password)
	if err != nil {
		return fmt.Errorf("%w: inserting password: %w", ErrPersist, err)
	}
	return nil
}

// RemovePassword drops every ledger entry for messageID.
func (s *SQLiteStore) RemovePassword(ctx context.Context, messageID schema.MessageID) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM passwords WHERE message_id = ?`, string(messageID))
	if err != nil {
		return 0, fmt.Errorf("%w: deleting password: %w", ErrPersist, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}

// ImportState copies st into the database in one transaction. Existing rows
// are kept; conflicting channels, users and passwords are overwritten or skipped
// the same way the individual operations would treat them.
func (s *SQLiteStore) ImportState(ctx context.Context, st *schema.State) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, kind := range []schema.ChannelKind{schema.Increment, schema.Decrement} {
			for _, id := range st.Registry(kind) {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO channels (id, kind) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
					string(id), kind.String())
				if err != nil {
					return fmt.Errorf("%w: importing channel %s: %w", ErrPersist, id, err)
				}
			}
		}
		for _, u := range sortedUsers(st) {
			if err := upsertUser(ctx, tx, u); err != nil {
				return fmt.Errorf("%w: importing user %s: %w", ErrPersist, u.ID, err)
			}
		}
		for _, entry := range st.Passwords {
			err := insertPassword(ctx, tx, entry)
			if errors.Is(err, ErrDuplicatePassword) {
				continue
			}
			if err != nil {
				return err
			}
		}
		s.logger.Info("imported state",
			"channels", len(st.Channels)+len(st.DecrementChannels),
			"users", len(st.Users),
			"passwords", len(st.Passwords),
		)
		return nil
	})
}

// withTx runs fn in a transaction, committing on success.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %w", ErrPersist, err)
	}
	return nil
}

// Compile-time assertion that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
