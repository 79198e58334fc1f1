// ABOUTME: Counter state machine reacting to presence transitions
// ABOUTME: Increments, floored decrements and the administrative count override

package counter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/FaCsaba/SmellyBot/internal/schema"
	"github.com/FaCsaba/SmellyBot/internal/store"
)

// Transition is a user moving into TargetChannelID, or out of every channel when it is nil.
type Transition struct {
	UserID          schema.UserID
	TargetChannelID *schema.ChannelID
}

// Outcome describes what a transition did to the store.
type Outcome int

const (
	// Ignored means the target was nil or not a registered channel.
	Ignored Outcome = iota
	// Incremented means the user's count went up by one.
	Incremented
	// Decremented means the user's count went down by one.
	Decremented
	// Floored means a decrement was dropped because the count would go negative.
	Floored
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Incremented:
		return "incremented"
	case Decremented:
		return "decremented"
	case Floored:
		return "floored"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Machine applies transitions to a Store.
type Machine struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Machine backed by s.
func New(s store.Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:  s,
		logger: logger.With("component", "counter"),
	}
}

// HandleTransition applies one presence transition and returns the user's
// resulting state alongside what happened.
func (m *Machine) HandleTransition(ctx context.Context, tr Transition) (schema.User, Outcome, error) {
	if tr.TargetChannelID == nil {
		return schema.User{}, Ignored, nil
	}
	target := *tr.TargetChannelID

	kind, ok, err := m.classify(ctx, target)
	if err != nil {
		return schema.User{}, Ignored, err
	}
	if !ok {
		return schema.User{}, Ignored, nil
	}

	var (
		user    schema.User
		written bool
		outcome Outcome
	)
	switch kind {
	case schema.Increment:
		outcome = Incremented
		user, written, err = m.store.UpdateUser(ctx, tr.UserID, increment)
	case schema.Decrement:
		outcome = Decremented
		user, written, err = m.store.UpdateUser(ctx, tr.UserID, decrement)
		if err == nil && !written {
			outcome = Floored
		}
	}
	if err != nil {
		return schema.User{}, Ignored, fmt.Errorf("updating %s count: %w", tr.UserID, err)
	}

	m.logger.Info("presence transition",
		"user", tr.UserID,
		"channel", target,
		"kind", kind,
		"outcome", outcome,
		"count", user.Count,
	)
	return user, outcome, nil
}

// classify reports which registry target belongs to. Increment wins when a
// channel is in both.
func (m *Machine) classify(ctx context.Context, target schema.ChannelID) (schema.ChannelKind, bool, error) {
	for _, kind := range []schema.ChannelKind{schema.Increment, schema.Decrement} {
		ids, err := m.store.Channels(ctx, kind)
		if err != nil {
			return 0, false, fmt.Errorf("reading %s channels: %w", kind, err)
		}
		if slices.Contains(ids, target) {
			return kind, true, nil
		}
	}
	return 0, false, nil
}

func increment(current schema.User, _ bool) (schema.User, bool) {
	current.Count++
	return current, true
}

// decrement never materializes an unknown user: its default count of zero
// would floor anyway.
func decrement(current schema.User, _ bool) (schema.User, bool) {
	next := current.Count - 1
	if next < 0 {
		return current, false
	}
	current.Count = next
	return current, true
}

// SetCount overrides a user's count with any value, bypassing the floor.
func (m *Machine) SetCount(ctx context.Context, userID schema.UserID, count int) (schema.User, error) {
	user := schema.User{ID: userID, Count: count}
	if err := m.store.UpsertUser(ctx, user); err != nil {
		return schema.User{}, fmt.Errorf("setting %s count: %w", userID, err)
	}
	m.logger.Info("count overridden", "user", userID, "count", count)
	return user, nil
}
