// ABOUTME: Tests for the command handler
// ABOUTME: Covers parsing, admin gating, every command and store failure propagation

package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FaCsaba/SmellyBot/internal/counter"
	"github.com/FaCsaba/SmellyBot/internal/schema"
	"github.com/FaCsaba/SmellyBot/internal/store"
)

const admin = schema.UserID("@admin:example.org")

func newTestHandler(t *testing.T) (*Handler, *store.MockStore) {
	t.Helper()

	mock := store.NewMockStore()
	h := NewHandler(mock, counter.New(mock, nil), Options{Admins: []schema.UserID{admin}}, nil)
	return h, mock
}

func TestParse(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		body     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"!list_smelly_boys", "list_smelly_boys", []string{}, true},
		{"  !SET_SMELLY_COUNT @u:x 5 ", "set_smelly_count", []string{"@u:x", "5"}, true},
		{"hello there", "", nil, false},
		{"!", "", nil, false},
		{"!   ", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			name, args, ok := h.Parse(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			if tt.wantOK {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestParse_CustomPrefix(t *testing.T) {
	h := NewHandler(store.NewMockStore(), nil, Options{Prefix: "smelly:"}, nil)

	name, args, ok := h.Parse("smelly: passwords")
	require.True(t, ok)
	assert.Equal(t, "passwords", name)
	assert.Empty(t, args)

	_, _, ok = h.Parse("!passwords")
	assert.False(t, ok)
}

func TestHandle_UnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Handle(context.Background(), Invocation{Name: "dance", SenderID: admin})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestHandle_AdminCommandsRequireAdmin(t *testing.T) {
	h, mock := newTestHandler(t)
	ctx := context.Background()

	for _, name := range []string{CmdRegisterSmellyChannel, CmdRegisterShowerChannel, CmdSetSmellyCount} {
		_, err := h.Handle(ctx, Invocation{Name: name, Args: []string{"@u:x", "1"}, RoomID: "!room", SenderID: "@nobody:x"})
		assert.ErrorIs(t, err, ErrForbidden, name)
	}
	assert.Zero(t, mock.Persists)
}

func TestHandle_RegisterChannels(t *testing.T) {
	h, mock := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Invocation{Name: CmdRegisterSmellyChannel, RoomID: "!here", SenderID: admin})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "`!here` as the smelly channel")

	reply, err = h.Handle(ctx, Invocation{Name: CmdRegisterShowerChannel, Args: []string{"!shower"}, RoomID: "!here", SenderID: admin})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "`!shower` as the shower channel")

	st, err := mock.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schema.ChannelID{"!here"}, st.Channels)
	assert.Equal(t, []schema.ChannelID{"!shower"}, st.DecrementChannels)

	_, err = h.Handle(ctx, Invocation{Name: CmdRegisterShowerChannel, RoomID: "!here", SenderID: admin})
	assert.ErrorIs(t, err, store.ErrChannelKindConflict)
}

func TestHandle_SetSmellyCount(t *testing.T) {
	h, mock := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Invocation{Name: CmdSetSmellyCount, Args: []string{"@u:x", "-5"}, SenderID: admin})
	require.NoError(t, err)
	assert.Equal(t, "Set @u:x's smelly count to -5.", reply.Markdown)

	u, err := mock.GetUser(ctx, "@u:x")
	require.NoError(t, err)
	assert.Equal(t, -5, u.Count)

	_, err = h.Handle(ctx, Invocation{Name: CmdSetSmellyCount, Args: []string{"@u:x", "lots"}, SenderID: admin})
	assert.ErrorIs(t, err, ErrUsage)

	_, err = h.Handle(ctx, Invocation{Name: CmdSetSmellyCount, Args: []string{"@u:x"}, SenderID: admin})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestHandle_ListSmellyBoys(t *testing.T) {
	h, mock := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Invocation{Name: CmdListSmellyBoys})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "No smelly boys yet!")

	for id, count := range map[schema.UserID]int{"a": 3, "b": 7, "c": 0, "d": 1, "e": 2, "f": -1} {
		require.NoError(t, mock.UpsertUser(ctx, schema.User{ID: id, Count: count}))
	}

	reply, err = h.Handle(ctx, Invocation{Name: CmdListSmellyBoys})
	require.NoError(t, err)
	assert.Equal(t, "### Smelliest boys!\n\n"+
		"🥇 b 7  \n"+
		"🥈 a 3  \n"+
		"🥉 e 2  \n"+
		"4: d 1  \n", reply.Markdown)
}

func TestHandle_Passwords(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Invocation{Name: CmdPasswords})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "No passwords yet!")
	assert.NotContains(t, reply.Markdown, "Most passwords by")

	register := func(id, author, body string) Reply {
		t.Helper()
		reply, err := h.Handle(ctx, Invocation{
			Name:     CmdRegisterPassword,
			SenderID: "@someone:x",
			ReplyTo:  &Message{ID: schema.MessageID(id), AuthorID: schema.UserID(author), Body: body},
		})
		require.NoError(t, err)
		return reply
	}

	assert.Equal(t, "Registered new password: `hunter2`.", register("m1", "a", "hunter2").Markdown)
	register("m2", "b", "swordfish")
	register("m3", "b", " letmein ")
	assert.Equal(t, "`hunter2` is already registered.", register("m1", "a", "hunter2").Markdown)

	reply, err = h.Handle(ctx, Invocation{Name: CmdPasswords})
	require.NoError(t, err)
	assert.Equal(t, "### Passwords:\n\n"+
		"1 a: `hunter2`  \n"+
		"2 b: `swordfish`  \n"+
		"3 b: `letmein`  \n"+
		"\nMost passwords by: b, they made 2 passwords.\n", reply.Markdown)
}

func TestHandle_PasswordWithBackticks(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Invocation{
		Name:    CmdRegisterPassword,
		ReplyTo: &Message{ID: "m1", AuthorID: "a", Body: "pass`word"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Registered new password: ``pass`word``.", reply.Markdown)

	reply, err = h.Handle(ctx, Invocation{Name: CmdPasswords})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "1 a: ``pass`word``  \n")

	html, err := RenderHTML(reply.Markdown)
	require.NoError(t, err)
	assert.Contains(t, html, "<code>pass`word</code>")
}

func TestHandle_RemovePassword(t *testing.T) {
	h, mock := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, mock.AppendPassword(ctx, schema.PasswordEntry{UserID: "a", MessageID: "m1", Password: "one"}))
	require.NoError(t, mock.AppendPassword(ctx, schema.PasswordEntry{UserID: "b", MessageID: "m2", Password: "two"}))

	reply, err := h.Handle(ctx, Invocation{Name: CmdRemovePassword, ReplyTo: &Message{ID: "m1", AuthorID: "a", Body: "one"}})
	require.NoError(t, err)
	assert.Equal(t, "Removed `one` from password list.", reply.Markdown)

	reply, err = h.Handle(ctx, Invocation{Name: CmdRemovePassword, ReplyTo: &Message{ID: "m9", Body: "nine"}})
	require.NoError(t, err)
	assert.Equal(t, "That message is not in the password list.", reply.Markdown)

	entries, err := mock.ListPasswords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []schema.PasswordEntry{{UserID: "b", MessageID: "m2", Password: "two"}}, entries)
}

func TestHandle_PasswordCommandsNeedReply(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	_, err := h.Handle(ctx, Invocation{Name: CmdRegisterPassword})
	assert.ErrorIs(t, err, ErrUsage)

	_, err = h.Handle(ctx, Invocation{Name: CmdRemovePassword})
	assert.ErrorIs(t, err, ErrUsage)

	_, err = h.Handle(ctx, Invocation{Name: CmdRegisterPassword, ReplyTo: &Message{ID: "m1", Body: "   "}})
	assert.ErrorIs(t, err, ErrUsage)
}

func TestHandle_PersistFailureSurfaces(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.FailPersist = true
	ctx := context.Background()

	_, err := h.Handle(ctx, Invocation{Name: CmdSetSmellyCount, Args: []string{"@u:x", "1"}, SenderID: admin})
	assert.ErrorIs(t, err, store.ErrPersist)

	_, err = h.Handle(ctx, Invocation{Name: CmdRegisterPassword, ReplyTo: &Message{ID: "m1", AuthorID: "a", Body: "pw"}})
	assert.ErrorIs(t, err, store.ErrPersist)

	_, err = h.Handle(ctx, Invocation{Name: CmdRegisterSmellyChannel, RoomID: "!r", SenderID: admin})
	assert.ErrorIs(t, err, store.ErrPersist)
}

func TestHandle_HelpHidesAdminCommands(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	reply, err := h.Handle(ctx, Invocation{Name: CmdHelp, SenderID: "@nobody:x"})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "!list_smelly_boys")
	assert.NotContains(t, reply.Markdown, "!set_smelly_count")

	reply, err = h.Handle(ctx, Invocation{Name: CmdHelp, SenderID: admin})
	require.NoError(t, err)
	assert.Contains(t, reply.Markdown, "`!set_smelly_count <user> <count>`")
}

func TestHandle_MentionFormatter(t *testing.T) {
	mock := store.NewMockStore()
	h := NewHandler(mock, counter.New(mock, nil), Options{
		Admins:  []schema.UserID{admin},
		Mention: func(id schema.UserID) string { return "<" + string(id) + ">" },
	}, nil)

	reply, err := h.Handle(context.Background(), Invocation{Name: CmdSetSmellyCount, Args: []string{"u", "2"}, SenderID: admin})
	require.NoError(t, err)
	assert.Equal(t, "Set <u>'s smelly count to 2.", reply.Markdown)
}
