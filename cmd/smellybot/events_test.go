// ABOUTME: Tests for Matrix event translation and reply helpers
// ABOUTME: Covers member and call transitions, mentions and failure replies

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/FaCsaba/SmellyBot/internal/commands"
	"github.com/FaCsaba/SmellyBot/internal/schema"
	"github.com/FaCsaba/SmellyBot/internal/store"
)

func stateEvent(typ event.Type, sender, stateKey, content, prev string) *event.Event {
	evt := &event.Event{
		Type:     typ,
		ID:       id.EventID("$evt"),
		RoomID:   id.RoomID("!room:example.org"),
		Sender:   id.UserID(sender),
		StateKey: &stateKey,
		Content:  event.Content{VeryRaw: json.RawMessage(content)},
	}
	if prev != "" {
		evt.Unsigned.PrevContent = &event.Content{VeryRaw: json.RawMessage(prev)}
	}
	return evt
}

func TestMemberTransition(t *testing.T) {
	room := schema.ChannelID("!room:example.org")

	tests := []struct {
		name       string
		content    string
		prev       string
		wantOK     bool
		wantTarget *schema.ChannelID
	}{
		{name: "first join", content: `{"membership":"join"}`, wantOK: true, wantTarget: &room},
		{name: "join after leave", content: `{"membership":"join"}`, prev: `{"membership":"leave"}`, wantOK: true, wantTarget: &room},
		{name: "profile change", content: `{"membership":"join","displayname":"new"}`, prev: `{"membership":"join"}`},
		{name: "leave", content: `{"membership":"leave"}`, prev: `{"membership":"join"}`, wantOK: true},
		{name: "invite", content: `{"membership":"invite"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := stateEvent(event.StateMember, "@mod:example.org", "@alice:example.org", tt.content, tt.prev)
			tr, ok := memberTransition(evt)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, schema.UserID("@alice:example.org"), tr.UserID, "member is the state key, not the sender")
			assert.Equal(t, tt.wantTarget, tr.TargetChannelID)
		})
	}
}

func TestMemberTransition_NoStateKey(t *testing.T) {
	evt := stateEvent(event.StateMember, "@alice:example.org", "", `{"membership":"join"}`, "")
	_, ok := memberTransition(evt)
	assert.False(t, ok)
}

func TestCallTransition(t *testing.T) {
	room := schema.ChannelID("!room:example.org")
	legacyJoined := `{"memberships":[{"call_id":"","device_id":"DEV","scope":"m.room"}]}`
	deviceJoined := `{"application":"m.call","call_id":"","device_id":"DEV","focus_active":{"type":"livekit"}}`

	tests := []struct {
		name       string
		content    string
		prev       string
		wantOK     bool
		wantTarget *schema.ChannelID
	}{
		{name: "legacy join", content: legacyJoined, wantOK: true, wantTarget: &room},
		{name: "legacy leave", content: `{"memberships":[]}`, prev: legacyJoined, wantOK: true},
		{name: "device join", content: deviceJoined, prev: `{}`, wantOK: true, wantTarget: &room},
		{name: "device leave", content: `{}`, prev: deviceJoined, wantOK: true},
		{name: "membership refresh", content: deviceJoined, prev: deviceJoined},
		{name: "empty to empty", content: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := stateEvent(stateCallMember, "@alice:example.org", "_@alice:example.org_DEV", tt.content, tt.prev)
			tr, ok := callTransition(evt)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, schema.UserID("@alice:example.org"), tr.UserID)
			assert.Equal(t, tt.wantTarget, tr.TargetChannelID)
		})
	}
}

func TestInCall(t *testing.T) {
	assert.False(t, inCall(nil))
	assert.False(t, inCall([]byte(`[]`)))
	assert.False(t, inCall([]byte(`{"memberships":"yes"}`)))
	assert.True(t, inCall([]byte(`{"memberships":[{}]}`)))
	assert.True(t, inCall([]byte(`{"application":"m.call"}`)))
}

func TestMention(t *testing.T) {
	assert.Equal(t,
		"[@alice:example.org](https://matrix.to/#/@alice:example.org)",
		mention("@alice:example.org"))
}

func TestFailureText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: dance", commands.ErrUnknownCommand), "Unknown command. Try `!help`."},
		{fmt.Errorf("%w: set_smelly_count", commands.ErrForbidden), "You are not allowed to do that."},
		{fmt.Errorf("%w: count %q is not an integer", commands.ErrUsage, "x"), `Invalid arguments: count "x" is not an integer`},
		{fmt.Errorf("registering channel: %w", store.ErrChannelKindConflict), "That channel is already registered as the other kind."},
		{fmt.Errorf("appending password: %w", store.ErrPersist), "Could not save that, please try again later."},
		{fmt.Errorf("loading: %w", schema.ErrUnsupportedVersion), "The database was written by a newer version of the bot."},
		{context.DeadlineExceeded, "Something went wrong."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, failureText(tt.err, "!"), tt.err.Error())
	}
}
