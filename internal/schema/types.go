// ABOUTME: Current-shape state types for the bot's persisted data
// ABOUTME: Defines ids, User, PasswordEntry, channel kinds and the State document

package schema

import (
	"fmt"
	"slices"
)

// ChannelID identifies a chat channel (a Matrix room on the gateway side).
type ChannelID string

// UserID identifies a chat user.
type UserID string

// MessageID identifies the chat message a password was taken from.
type MessageID string

// ChannelKind selects one of the two channel registries.
type ChannelKind int

const (
	// Increment channels raise the counter of users entering them.
	Increment ChannelKind = iota
	// Decrement channels lower the counter of users entering them, floored at zero.
	Decrement
)

func (k ChannelKind) String() string {
	switch k {
	case Increment:
		return "increment"
	case Decrement:
		return "decrement"
	default:
		return fmt.Sprintf("ChannelKind(%d)", int(k))
	}
}

// User is a per-user counter.
type User struct {
	ID    UserID `json:"id"`
	Count int    `json:"count"`
}

// PasswordEntry is one line of the password ledger.
type PasswordEntry struct {
	UserID    UserID    `json:"userId"`
	MessageID MessageID `json:"messageId"`
	Password  string    `json:"password"`
}

// State is the current (version 3) shape of the persisted document.
type State struct {
	Channels          []ChannelID     `json:"channels"`
	DecrementChannels []ChannelID     `json:"decrementChannels"`
	Users             map[UserID]User `json:"users"`
	Passwords         []PasswordEntry `json:"passwords"`
}

// NewState returns the empty current-version state.
func NewState() *State {
	return &State{
		Channels:          []ChannelID{},
		DecrementChannels: []ChannelID{},
		Users:             map[UserID]User{},
		Passwords:         []PasswordEntry{},
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := &State{
		Channels:          slices.Clone(s.Channels),
		DecrementChannels: slices.Clone(s.DecrementChannels),
		Users:             make(map[UserID]User, len(s.Users)),
		Passwords:         slices.Clone(s.Passwords),
	}
	for id, u := range s.Users {
		c.Users[id] = u
	}
	c.normalize()
	return c
}

// Registry returns the channel list for kind.
func (s *State) Registry(kind ChannelKind) []ChannelID {
	if kind == Decrement {
		return s.DecrementChannels
	}
	return s.Channels
}

// HasChannel reports whether id is registered as kind.
func (s *State) HasChannel(kind ChannelKind, id ChannelID) bool {
	return slices.Contains(s.Registry(kind), id)
}

// normalize replaces nil collections with empty ones so the encoded document
// always carries every field of the current version.
func (s *State) normalize() {
	if s.Channels == nil {
		s.Channels = []ChannelID{}
	}
	if s.DecrementChannels == nil {
		s.DecrementChannels = []ChannelID{}
	}
	if s.Users == nil {
		s.Users = map[UserID]User{}
	}
	if s.Passwords == nil {
		s.Passwords = []PasswordEntry{}
	}
}
