// ABOUTME: Translation of Matrix state events into presence transitions
// ABOUTME: Handles m.room.member joins and MatrixRTC call membership events

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"maunium.net/go/mautrix/event"

	"github.com/FaCsaba/SmellyBot/internal/commands"
	"github.com/FaCsaba/SmellyBot/internal/counter"
	"github.com/FaCsaba/SmellyBot/internal/schema"
	"github.com/FaCsaba/SmellyBot/internal/store"
)

// stateCallMember is the MatrixRTC call membership state event.
var stateCallMember = event.Type{Type: "org.matrix.msc3401.call.member", Class: event.StateEventType}

func rawContent(c *event.Content) []byte {
	if c == nil {
		return nil
	}
	return c.VeryRaw
}

// memberTransition turns an m.room.member event into a transition. Joining a
// room targets it; leaving targets nothing. Profile updates of an already
// joined member are not transitions.
func memberTransition(evt *event.Event) (counter.Transition, bool) {
	if evt.StateKey == nil || *evt.StateKey == "" {
		return counter.Transition{}, false
	}
	user := schema.UserID(*evt.StateKey)

	membership := gjson.GetBytes(rawContent(&evt.Content), "membership").String()
	previous := gjson.GetBytes(rawContent(evt.Unsigned.PrevContent), "membership").String()

	switch {
	case membership == string(event.MembershipJoin) && previous != string(event.MembershipJoin):
		room := schema.ChannelID(evt.RoomID)
		return counter.Transition{UserID: user, TargetChannelID: &room}, true
	case membership != string(event.MembershipJoin) && previous == string(event.MembershipJoin):
		return counter.Transition{UserID: user}, true
	default:
		return counter.Transition{}, false
	}
}

// inCall reports whether call membership content describes an active
// membership. Legacy events carry a memberships array; per-device events are
// an object that is emptied on leave.
func inCall(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	content := gjson.ParseBytes(raw)
	if !content.IsObject() {
		return false
	}
	if memberships := content.Get("memberships"); memberships.Exists() {
		return memberships.IsArray() && len(memberships.Array()) > 0
	}
	return len(content.Map()) > 0
}

// callTransition turns a call membership event into a transition. A refresh
// of an existing membership is not a transition.
func callTransition(evt *event.Event) (counter.Transition, bool) {
	if evt.Sender == "" {
		return counter.Transition{}, false
	}
	user := schema.UserID(evt.Sender)

	joined := inCall(rawContent(&evt.Content))
	wasJoined := inCall(rawContent(evt.Unsigned.PrevContent))

	switch {
	case joined && !wasJoined:
		room := schema.ChannelID(evt.RoomID)
		return counter.Transition{UserID: user, TargetChannelID: &room}, true
	case !joined && wasJoined:
		return counter.Transition{UserID: user}, true
	default:
		return counter.Transition{}, false
	}
}

// mention renders a user as a matrix.to link.
func mention(id schema.UserID) string {
	return fmt.Sprintf("[%s](https://matrix.to/#/%s)", id, id)
}

// failureText is the chat reply for a failed command.
func failureText(err error, prefix string) string {
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		return fmt.Sprintf("Unknown command. Try `%shelp`.", prefix)
	case errors.Is(err, commands.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, commands.ErrUsage):
		return "Invalid arguments: " + strings.TrimPrefix(err.Error(), commands.ErrUsage.Error()+": ")
	case errors.Is(err, store.ErrChannelKindConflict):
		return "That channel is already registered as the other kind."
	case errors.Is(err, store.ErrPersist):
		return "Could not save that, please try again later."
	case errors.Is(err, schema.ErrUnsupportedVersion):
		return "The database was written by a newer version of the bot."
	default:
		return "Something went wrong."
	}
}
