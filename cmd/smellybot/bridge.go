// ABOUTME: Matrix bridge core for smellybot
// ABOUTME: Feeds presence events to the counter machine and text commands to the command handler

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/FaCsaba/SmellyBot/internal/commands"
	"github.com/FaCsaba/SmellyBot/internal/config"
	"github.com/FaCsaba/SmellyBot/internal/counter"
	"github.com/FaCsaba/SmellyBot/internal/dedupe"
	"github.com/FaCsaba/SmellyBot/internal/schema"
)

const (
	// networkTimeout bounds Matrix API calls made while handling an event.
	networkTimeout = 10 * time.Second

	dedupeTTL  = 10 * time.Minute
	dedupeSize = 4096
)

// Bridge connects a Matrix account to the counter machine and command handler.
type Bridge struct {
	config   *config.Config
	matrix   *mautrix.Client
	machine  *counter.Machine
	commands *commands.Handler
	seen     *dedupe.Window
	crypto   *CryptoManager
	logger   *slog.Logger

	// inflight tracks command goroutines so shutdown can wait for them
	inflight sync.WaitGroup
}

// NewBridge creates a Matrix bridge. Login must be called before Run.
func NewBridge(cfg *config.Config, machine *counter.Machine, handler *commands.Handler, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		config:   cfg,
		matrix:   client,
		machine:  machine,
		commands: handler,
		seen:     dedupe.NewWindow(dedupeTTL, dedupeSize),
		logger:   logger.With("component", "bridge"),
	}, nil
}

// Login authenticates with the homeserver unless an access token was configured.
func (b *Bridge) Login(ctx context.Context) error {
	if b.config.Matrix.AccessToken != "" {
		resp, err := b.matrix.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("checking access token: %w", err)
		}
		b.matrix.DeviceID = resp.DeviceID
		b.logger.Info("using access token", "user_id", resp.UserID, "device_id", resp.DeviceID)
		return nil
	}

	resp, err := b.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.config.Matrix.Username,
		},
		Password:                 b.config.Matrix.Password,
		InitialDeviceDisplayName: "smellybot",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}
	b.logger.Info("logged in", "user_id", resp.UserID, "device_id", resp.DeviceID)
	return nil
}

// UserID returns the logged in user.
func (b *Bridge) UserID() string {
	return b.matrix.UserID.String()
}

// Run registers event handlers and syncs until ctx is cancelled. Command
// handlers still running at shutdown are waited for.
func (b *Bridge) Run(ctx context.Context) error {
	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}

	// The initial sync replays current room state; only live changes are transitions.
	syncer.OnSync(b.matrix.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		b.handleMessageEvent(ctx, evt)
	})

	switch b.config.Bot.PresenceSource {
	case config.PresenceMembership:
		syncer.OnEventType(event.StateMember, func(_ context.Context, evt *event.Event) {
			b.handlePresenceEvent(ctx, evt, memberTransition)
		})
	default:
		syncer.OnEventType(stateCallMember, func(_ context.Context, evt *event.Event) {
			b.handlePresenceEvent(ctx, evt, callTransition)
		})
	}

	b.logger.Info("connecting to matrix homeserver",
		"homeserver", b.config.Matrix.Homeserver,
		"presence_source", b.config.Bot.PresenceSource,
	)

	err := b.matrix.SyncWithContext(ctx)
	b.inflight.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	b.logger.Info("matrix bridge stopped")
	return nil
}

// fresh reports whether the event has not been handled before.
func (b *Bridge) fresh(evt *event.Event) bool {
	if evt.ID == "" {
		return true
	}
	if b.seen.Observe(evt.ID.String()) {
		b.logger.Debug("dropping redelivered event", "event_id", evt.ID)
		return false
	}
	return true
}

func (b *Bridge) handlePresenceEvent(ctx context.Context, evt *event.Event, translate func(*event.Event) (counter.Transition, bool)) {
	if evt.Mautrix.EventSource&event.SourceTimeline == 0 {
		return
	}
	if !b.fresh(evt) {
		return
	}

	tr, ok := translate(evt)
	if !ok {
		return
	}

	// The machine logs the outcome
	if _, _, err := b.machine.HandleTransition(ctx, tr); err != nil {
		b.logger.Error("applying presence transition", "user", tr.UserID, "room", evt.RoomID, "error", err)
	}
}

// handleMessageEvent parses commands out of text messages.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.matrix.UserID {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID)
		return
	}

	body := content.Body
	if content.RelatesTo.GetReplyTo() != "" {
		content.RemoveReplyFallback()
		body = content.Body
	}

	name, args, ok := b.commands.Parse(body)
	if !ok {
		return
	}
	if !b.fresh(evt) {
		return
	}

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.processCommand(ctx, evt, content, name, args)
	}()
}

func (b *Bridge) processCommand(ctx context.Context, evt *event.Event, content *event.MessageEventContent, name string, args []string) {
	inv := commands.Invocation{
		Name:     name,
		Args:     args,
		RoomID:   schema.ChannelID(evt.RoomID),
		SenderID: schema.UserID(evt.Sender),
	}

	if replyTo := content.RelatesTo.GetReplyTo(); replyTo != "" {
		msg, err := b.fetchMessage(ctx, evt.RoomID, replyTo)
		if err != nil {
			b.logger.Warn("fetching replied-to message", "room", evt.RoomID, "event_id", replyTo, "error", err)
		} else {
			inv.ReplyTo = msg
		}
	}

	reply, err := b.commands.Handle(ctx, inv)
	if err != nil {
		b.sendReply(evt, failureText(err, b.config.Bot.CommandPrefix))
		return
	}
	b.sendReply(evt, reply.Markdown)
}

// fetchMessage loads the text message a command replied to.
func (b *Bridge) fetchMessage(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*commands.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	evt, err := b.matrix.GetEvent(ctx, roomID, eventID)
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}

	if evt.Type == event.EventEncrypted {
		if b.crypto == nil {
			return nil, fmt.Errorf("event %s is encrypted and encryption is disabled", eventID)
		}
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			return nil, fmt.Errorf("parsing encrypted event: %w", err)
		}
		evt, err = b.crypto.Decrypt(ctx, evt)
		if err != nil {
			return nil, fmt.Errorf("decrypting event: %w", err)
		}
	} else if err := evt.Content.ParseRaw(evt.Type); err != nil {
		return nil, fmt.Errorf("parsing event: %w", err)
	}

	msg := evt.Content.AsMessage()
	if msg.RelatesTo.GetReplyTo() != "" {
		msg.RemoveReplyFallback()
	}

	return &commands.Message{
		ID:       schema.MessageID(evt.ID),
		AuthorID: schema.UserID(evt.Sender),
		Body:     msg.Body,
	}, nil
}

// sendReply answers evt with Markdown rendered as HTML, falling back to plain text.
func (b *Bridge) sendReply(evt *event.Event, markdown string) {
	content := &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    markdown,
	}
	if html, err := commands.RenderHTML(markdown); err != nil {
		b.logger.Warn("rendering reply", "error", err)
	} else {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	content.SetReply(evt)

	// Replies go out even while shutting down
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.matrix.SendMessageEvent(ctx, evt.RoomID, event.EventMessage, content); err != nil {
		b.logger.Error("failed to send reply", "room", evt.RoomID, "error", err)
	}
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.config.Bot.AllowedRooms) == 0 {
		return true
	}
	return slices.Contains(b.config.Bot.AllowedRooms, roomID)
}
