package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/config"
	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/conversation"
	"github.com/sandevgo/reliefdesk/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const (
	baseContextKey = "base_context"
	ackUnique      = "ack"

	// Bot API download limit.
	maxDownloadBytes = 20 << 20
)

type Conversation interface {
	Handle(ctx context.Context, id int64, in conversation.Input) (conversation.Reply, error)
	Options(id int64) []string
}

type Acknowledger interface {
	AcknowledgeReminder(ctx context.Context, id, identityID int64) error
}

type Bot struct {
	bot          *tele.Bot
	sender       *Sender
	router       core.CmdRouter
	conversation Conversation
	reminders    Acknowledger
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	router core.CmdRouter,
	conv Conversation,
	reminders Acknowledger,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: time.Duration(cfg.PollTimeout) * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:          b,
		sender:       NewSender(b),
		router:       router,
		conversation: conv,
		reminders:    reminders,
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	// Private chats only.
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || c.Chat() == nil || c.Chat().Type != tele.ChatPrivate {
				return nil
			}
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleText)
	b.Handle(tele.OnPhoto, bot.handlePhoto)
	b.Handle(tele.OnDocument, bot.handleDocument)
	b.Handle(&tele.InlineButton{Unique: ackUnique}, bot.handleAck)

	return bot, nil
}

// Messenger returns the outbound side of the bot for schedulers and sweepers.
func (b *Bot) Messenger() *Sender {
	return b.sender
}

func (b *Bot) Name() string { return "telegram" }

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("bot", b.bot.Me.Username).Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) requestContext(c tele.Context) (context.Context, int64) {
	ctx := c.Get(baseContextKey).(context.Context)
	id := c.Sender().ID
	logger := log.FromCtx(ctx).With().Int64("identity", id).Logger()
	return logger.WithContext(ctx), id
}

func (b *Bot) handleText(c tele.Context) error {
	ctx, id := b.requestContext(c)
	_ = c.Notify(tele.Typing)

	caller := core.Caller{ID: id, Name: displayName(c.Sender())}
	if out, ok := b.router.Execute(ctx, caller, c.Text()); ok {
		return b.reply(ctx, c, out, b.conversation.Options(id))
	}

	return b.converse(ctx, c, id, conversation.Input{Kind: conversation.InputText, Text: c.Text()})
}

func (b *Bot) handlePhoto(c tele.Context) error {
	ctx, id := b.requestContext(c)
	msg := c.Message()
	_ = c.Notify(tele.Typing)

	data, err := b.download(&msg.Photo.File)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("failed to download photo")
		return b.reply(ctx, c, "Could not download the photo, please send it again.", nil)
	}

	return b.converse(ctx, c, id, conversation.Input{
		Kind: conversation.InputArtifact,
		Artifact: &core.Artifact{
			Caption:   msg.Caption,
			FileName:  fmt.Sprintf("photo_%d.jpg", msg.ID),
			MediaType: "image/jpeg",
			Data:      data,
		},
	})
}

func (b *Bot) handleDocument(c tele.Context) error {
	ctx, id := b.requestContext(c)
	doc := c.Message().Document
	_ = c.Notify(tele.Typing)

	if doc.FileSize > maxDownloadBytes {
		return b.reply(ctx, c, "That file is too large. Files up to 20 MB are supported.", nil)
	}
	data, err := b.download(&doc.File)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("file", doc.FileName).Msg("failed to download document")
		return b.reply(ctx, c, "Could not download the file, please send it again.", nil)
	}

	// A command caption turns the file into the command's body (/massupload).
	if caption := strings.TrimSpace(c.Message().Caption); strings.HasPrefix(caption, "/") {
		caller := core.Caller{ID: id, Name: displayName(c.Sender())}
		if out, ok := b.router.Execute(ctx, caller, commandWithBody(caption, data)); ok {
			return b.reply(ctx, c, out, b.conversation.Options(id))
		}
	}

	return b.converse(ctx, c, id, conversation.Input{
		Kind: conversation.InputArtifact,
		Artifact: &core.Artifact{
			Caption:   c.Message().Caption,
			FileName:  doc.FileName,
			MediaType: doc.MIME,
			Data:      data,
		},
	})
}

func (b *Bot) converse(ctx context.Context, c tele.Context, id int64, in conversation.Input) error {
	reply, err := b.conversation.Handle(ctx, id, in)
	if err != nil {
		return b.reply(ctx, c, conversationError(ctx, err), nil)
	}
	return b.reply(ctx, c, reply.Text, reply.Options)
}

// conversationError turns an engine error into a message for the sender.
func conversationError(ctx context.Context, err error) string {
	var aerr *core.AuthorizationError
	switch {
	case errors.Is(err, core.ErrBusy):
		return "Still working on your previous message, please wait."
	case errors.Is(err, core.ErrNotRegistered):
		return "You are not registered yet. Send /start to see your id."
	case errors.As(err, &aerr):
		return fmt.Sprintf("You need the %s role to do that.", aerr.Need)
	default:
		log.FromCtx(ctx).Error().Err(err).Msg("conversation failed")
		return "Something went wrong, please try again."
	}
}

func (b *Bot) handleAck(c tele.Context) error {
	ctx, id := b.requestContext(c)

	reminderID, err := parseAckData(c.Callback().Data)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown reminder."})
	}

	err = b.reminders.AcknowledgeReminder(ctx, reminderID, id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return c.Respond(&tele.CallbackResponse{Text: "This reminder is no longer active."})
	case err != nil:
		log.FromCtx(ctx).Error().Err(err).Int64("reminder", reminderID).Msg("failed to acknowledge reminder")
		return c.Respond(&tele.CallbackResponse{Text: "Could not record that, try again."})
	}

	if _, err := b.bot.EditReplyMarkup(c.Message(), nil); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to clear reminder button")
	}
	return c.Respond(&tele.CallbackResponse{Text: "Acknowledged. Thank you!"})
}

func (b *Bot) reply(ctx context.Context, c tele.Context, md string, options []string) error {
	return b.sender.sendMarkdown(ctx, c.Recipient(), md, false, keyboard(options))
}

func (b *Bot) download(f *tele.File) ([]byte, error) {
	rc, err := b.bot.File(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxDownloadBytes)
	}
	return data, nil
}

func commandWithBody(caption string, data []byte) string {
	return caption + "\n" + strings.TrimPrefix(string(data), "\ufeff")
}

// keyboard shows options as a one-time reply keyboard, two per row.
// No options removes any keyboard left from a previous prompt.
func keyboard(options []string) *tele.ReplyMarkup {
	if len(options) == 0 {
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}

	menu := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	var rows []tele.Row
	for i := 0; i < len(options); i += 2 {
		row := tele.Row{menu.Text(options[i])}
		if i+1 < len(options) {
			row = append(row, menu.Text(options[i+1]))
		}
		rows = append(rows, row)
	}
	menu.Reply(rows...)
	return menu
}

func ackMarkup(reminderID int64) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	btn := menu.Data("✅ Acknowledge", ackUnique, strconv.FormatInt(reminderID, 10))
	menu.Inline(menu.Row(btn))
	return menu
}

func parseAckData(data string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(data), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid reminder id %q", data)
	}
	return id, nil
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
