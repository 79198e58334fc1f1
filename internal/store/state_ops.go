// ABOUTME: In-memory state mutations shared by FileStore and MockStore
// ABOUTME: Registry inserts, user updates and ledger append/remove on a schema.State

package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/FaCsaba/SmellyBot/internal/schema"
)

// errNoChange tells mutate to skip the persist.
var errNoChange = errors.New("no change")

func otherKind(kind schema.ChannelKind) schema.ChannelKind {
	if kind == schema.Increment {
		return schema.Decrement
	}
	return schema.Increment
}

// registerChannel inserts id into the registry for kind. Re-registering is a no-op.
func registerChannel(st *schema.State, kind schema.ChannelKind, id schema.ChannelID) error {
	if st.HasChannel(otherKind(kind), id) {
		return fmt.Errorf("%w: %s is a %s channel", ErrChannelKindConflict, id, otherKind(kind))
	}
	if st.HasChannel(kind, id) {
		return nil
	}
	switch kind {
	case schema.Increment:
		st.Channels = append(st.Channels, id)
	case schema.Decrement:
		st.DecrementChannels = append(st.DecrementChannels, id)
	default:
		return fmt.Errorf("unknown channel kind %d", kind)
	}
	return nil
}

// updateUser applies fn to the user keyed by id.
func updateUser(st *schema.State, id schema.UserID, fn UpdateFunc) (schema.User, error) {
	current, exists := st.Users[id]
	next, write := fn(current, exists)
	if !write {
		return current, errNoChange
	}
	next.ID = id
	st.Users[id] = next
	return next, nil
}

// appendPassword adds entry to the ledger unless its message is already in it.
func appendPassword(st *schema.State, entry schema.PasswordEntry) error {
	if slices.ContainsFunc(st.Passwords, func(e schema.PasswordEntry) bool {
		return e.MessageID == entry.MessageID
	}) {
		return fmt.Errorf("%w: %s", ErrDuplicatePassword, entry.MessageID)
	}
	st.Passwords = append(st.Passwords, entry)
	return nil
}

// removePassword drops every entry taken from messageID and reports how many went.
func removePassword(st *schema.State, messageID schema.MessageID) int {
	before := len(st.Passwords)
	st.Passwords = slices.DeleteFunc(st.Passwords, func(e schema.PasswordEntry) bool {
		return e.MessageID == messageID
	})
	return before - len(st.Passwords)
}

// sortedUsers returns the users of st ordered by id.
func sortedUsers(st *schema.State) []schema.User {
	users := make([]schema.User, 0, len(st.Users))
	for _, u := range st.Users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
