// ABOUTME: Command handler mapping parsed chat commands to store and counter calls
// ABOUTME: Parses prefixed text, gates admin commands and formats Markdown replies

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/FaCsaba/SmellyBot/internal/counter"
	"github.com/FaCsaba/SmellyBot/internal/ledger"
	"github.com/FaCsaba/SmellyBot/internal/schema"
	"github.com/FaCsaba/SmellyBot/internal/store"
)

// Command names.
const (
	CmdRegisterSmellyChannel = "register_smelly_channel"
	CmdRegisterShowerChannel = "register_shower_channel"
	CmdSetSmellyCount        = "set_smelly_count"
	CmdListSmellyBoys        = "list_smelly_boys"
	CmdPasswords             = "passwords"
	CmdRegisterPassword      = "register_password"
	CmdRemovePassword        = "remove_password"
	CmdHelp                  = "help"
)

// ErrUnknownCommand is returned for command names the handler does not know
var ErrUnknownCommand = errors.New("unknown command")

// ErrForbidden is returned when a non-admin invokes an admin command
var ErrForbidden = errors.New("command requires admin rights")

// ErrUsage is returned when a command's arguments are missing or invalid
var ErrUsage = errors.New("invalid arguments")

// Message is a chat message a command refers to.
type Message struct {
	ID       schema.MessageID
	AuthorID schema.UserID
	Body     string
}

// Invocation is one parsed command.
type Invocation struct {
	Name     string
	Args     []string
	RoomID   schema.ChannelID
	SenderID schema.UserID
	// ReplyTo is the message the command was sent in reply to, if any.
	ReplyTo *Message
}

// Reply is the Markdown answer to an invocation.
type Reply struct {
	Markdown string
}

// Options configures a Handler.
type Options struct {
	// Prefix marks a chat message as a command. Defaults to "!".
	Prefix string
	// Admins may run the administrative commands.
	Admins []schema.UserID
	// Mention formats a user reference. Defaults to the bare id.
	Mention func(schema.UserID) string
}

type command struct {
	admin bool
	usage string
	help  string
	run   func(h *Handler, ctx context.Context, inv Invocation) (Reply, error)
}

// registry is filled in init because the help and usage paths read it back.
var registry map[string]command

func init() {
	registry = map[string]command{
		CmdRegisterSmellyChannel: {
			admin: true,
			usage: "[room]",
			help:  "Sets the channel as a dedicated smelly channel.",
			run:   func(h *Handler, ctx context.Context, inv Invocation) (Reply, error) { return h.registerChannel(ctx, inv, schema.Increment) },
		},
		CmdRegisterShowerChannel: {
			admin: true,
			usage: "[room]",
			help:  "Sets the channel that washes the sins of those stepping inside.",
			run:   func(h *Handler, ctx context.Context, inv Invocation) (Reply, error) { return h.registerChannel(ctx, inv, schema.Decrement) },
		},
		CmdSetSmellyCount: {
			admin: true,
			usage: "<user> <count>",
			help:  "Set a user's smelly count.",
			run:   (*Handler).setCount,
		},
		CmdListSmellyBoys: {
			help: "Lists all the smelly boys.",
			run:  (*Handler).listSmellyBoys,
		},
		CmdPasswords: {
			help: "Get a list of registered passwords.",
			run:  (*Handler).listPasswords,
		},
		CmdRegisterPassword: {
			usage: "(reply to a message)",
			help:  "Registers the replied-to message as a password.",
			run:   (*Handler).registerPassword,
		},
		CmdRemovePassword: {
			usage: "(reply to a message)",
			help:  "Removes the replied-to message from the password list.",
			run:   (*Handler).removePassword,
		},
		CmdHelp: {
			help: "Shows this list.",
			run:  (*Handler).help,
		},
	}
}

// Handler executes commands against a store and a counter machine.
type Handler struct {
	store   store.Store
	machine *counter.Machine
	prefix  string
	admins  map[schema.UserID]bool
	mention func(schema.UserID) string
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(s store.Store, m *counter.Machine, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.Mention == nil {
		opts.Mention = func(id schema.UserID) string { return string(id) }
	}

	admins := make(map[schema.UserID]bool, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[id] = true
	}

	return &Handler{
		store:   s,
		machine: m,
		prefix:  opts.Prefix,
		admins:  admins,
		mention: opts.Mention,
		logger:  logger.With("component", "commands"),
	}
}

// Parse splits a chat message into a command name and arguments. ok is false
// when the message does not start with the command prefix.
func (h *Handler) Parse(body string) (name string, args []string, ok bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, h.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(body, h.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// IsAdmin reports whether id may run administrative commands.
func (h *Handler) IsAdmin(id schema.UserID) bool {
	return h.admins[id]
}

// Handle runs one invocation.
func (h *Handler) Handle(ctx context.Context, inv Invocation) (Reply, error) {
	logger := h.logger.With(
		"invocation", uuid.NewString(),
		"command", inv.Name,
		"room", inv.RoomID,
		"sender", inv.SenderID,
	)

	cmd, ok := registry[inv.Name]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Name)
	}
	if cmd.admin && !h.IsAdmin(inv.SenderID) {
		logger.Warn("rejected admin command")
		return Reply{}, fmt.Errorf("%w: %s", ErrForbidden, inv.Name)
	}

	logger.Info("handling command", "args", len(inv.Args))
	reply, err := cmd.run(h, ctx, inv)
	if err != nil {
		logger.Error("command failed", "error", err)
		return Reply{}, err
	}
	return reply, nil
}

func (h *Handler) registerChannel(ctx context.Context, inv Invocation, kind schema.ChannelKind) (Reply, error) {
	target := inv.RoomID
	if len(inv.Args) > 0 {
		target = schema.ChannelID(inv.Args[0])
	}
	if target == "" {
		return Reply{}, fmt.Errorf("%w: no room given", ErrUsage)
	}

	if err := h.store.RegisterChannel(ctx, kind, target); err != nil {
		return Reply{}, fmt.Errorf("registering channel: %w", err)
	}

	label := "smelly"
	if kind == schema.Decrement {
		label = "shower"
	}
	return Reply{Markdown: fmt.Sprintf("Registered %s as the %s channel.", codeSpan(string(target)), label)}, nil
}

func (h *Handler) setCount(ctx context.Context, inv Invocation) (Reply, error) {
	if len(inv.Args) != 2 {
		return Reply{}, fmt.Errorf("%w: usage: %s%s %s", ErrUsage, h.prefix, CmdSetSmellyCount, registry[CmdSetSmellyCount].usage)
	}
	count, err := strconv.Atoi(inv.Args[1])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: count %q is not an integer", ErrUsage, inv.Args[1])
	}

	user, err := h.machine.SetCount(ctx, schema.UserID(inv.Args[0]), count)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Markdown: fmt.Sprintf("Set %s's smelly count to %d.", h.mention(user.ID), user.Count)}, nil
}

// place renders a leaderboard position: medals for the podium, numbers after.
func place(idx int) string {
	medals := []string{"🥇", "🥈", "🥉"}
	if idx < len(medals) {
		return medals[idx]
	}
	return fmt.Sprintf("%d:", idx+1)
}

func (h *Handler) listSmellyBoys(ctx context.Context, _ Invocation) (Reply, error) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("listing users: %w", err)
	}

	smelly := users[:0:0]
	for _, u := range users {
		if u.Count > 0 {
			smelly = append(smelly, u)
		}
	}
	sort.SliceStable(smelly, func(i, j int) bool { return smelly[i].Count > smelly[j].Count })

	var b strings.Builder
	b.WriteString("### Smelliest boys!\n\n")
	if len(smelly) == 0 {
		b.WriteString("No smelly boys yet!\n")
	}
	for i, u := range smelly {
		fmt.Fprintf(&b, "%s %s %d  \n", place(i), h.mention(u.ID), u.Count)
	}
	return Reply{Markdown: b.String()}, nil
}

func (h *Handler) listPasswords(ctx context.Context, _ Invocation) (Reply, error) {
	entries, err := h.store.ListPasswords(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("listing passwords: %w", err)
	}

	var b strings.Builder
	b.WriteString("### Passwords:\n\n")
	if len(entries) == 0 {
		b.WriteString("No passwords yet!\n")
	}
	for _, line := range ledger.Numbered(entries) {
		fmt.Fprintf(&b, "%d %s: %s  \n", line.Number, h.mention(line.Entry.UserID), codeSpan(line.Entry.Password))
	}
	if top, ok := ledger.MostProlific(entries); ok {
		fmt.Fprintf(&b, "\nMost passwords by: %s, they made %d passwords.\n", h.mention(top.UserID), top.Count)
	}
	return Reply{Markdown: b.String()}, nil
}

func (h *Handler) registerPassword(ctx context.Context, inv Invocation) (Reply, error) {
	if inv.ReplyTo == nil {
		return Reply{}, fmt.Errorf("%w: reply to the message holding the password", ErrUsage)
	}
	password := strings.TrimSpace(inv.ReplyTo.Body)
	if password == "" {
		return Reply{}, fmt.Errorf("%w: the replied-to message has no text", ErrUsage)
	}

	err := h.store.AppendPassword(ctx, schema.PasswordEntry{
		UserID:    inv.ReplyTo.AuthorID,
		MessageID: inv.ReplyTo.ID,
		Password:  password,
	})
	if errors.Is(err, store.ErrDuplicatePassword) {
		return Reply{Markdown: fmt.Sprintf("%s is already registered.", codeSpan(password))}, nil
	}
	if err != nil {
		return Reply{}, fmt.Errorf("registering password: %w", err)
	}
	return Reply{Markdown: fmt.Sprintf("Registered new password: %s.", codeSpan(password))}, nil
}

func (h *Handler) removePassword(ctx context.Context, inv Invocation) (Reply, error) {
	if inv.ReplyTo == nil {
		return Reply{}, fmt.Errorf("%w: reply to the message holding the password", ErrUsage)
	}

	removed, err := h.store.RemovePassword(ctx, inv.ReplyTo.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("removing password: %w", err)
	}
	if removed == 0 {
		return Reply{Markdown: "That message is not in the password list."}, nil
	}
	return Reply{Markdown: fmt.Sprintf("Removed %s from password list.", codeSpan(strings.TrimSpace(inv.ReplyTo.Body)))}, nil
}

func (h *Handler) help(_ context.Context, inv Invocation) (Reply, error) {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("### Commands\n\n")
	for _, name := range names {
		cmd := registry[name]
		if cmd.admin && !h.IsAdmin(inv.SenderID) {
			continue
		}
		line := "`" + h.prefix + name
		if cmd.usage != "" {
			line += " " + cmd.usage
		}
		fmt.Fprintf(&b, "- %s` %s\n", line, cmd.help)
	}
	return Reply{Markdown: b.String()}, nil
}
