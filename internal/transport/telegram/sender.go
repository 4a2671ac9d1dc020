package telegram

import (
	"context"
	"strings"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/conv"
	"github.com/sandevgo/reliefdesk/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const maxTelegramMsgLen = 4000 // Safety margin below 4096

// Sender delivers outbound messages. It implements core.Messenger.
type Sender struct {
	bot *tele.Bot
}

func NewSender(bot *tele.Bot) *Sender {
	return &Sender{bot: bot}
}

// Notify sends an informational message without a notification sound.
func (s *Sender) Notify(ctx context.Context, identityID int64, text string) error {
	return s.sendMarkdown(ctx, tele.ChatID(identityID), text, true, nil)
}

// DeliverReminder sends a reminder with an acknowledge button. Delivery
// errors are transport errors and left to the caller to classify.
func (s *Sender) DeliverReminder(ctx context.Context, r core.Reminder, text string) error {
	return s.sendMarkdown(ctx, tele.ChatID(r.IdentityID), text, false, ackMarkup(r.ID))
}

// sendMarkdown converts Markdown to Telegram HTML and sends it in chunks if needed.
// Markup is attached to the last chunk.
func (s *Sender) sendMarkdown(ctx context.Context, to tele.Recipient, md string, silent bool, markup *tele.ReplyMarkup) error {
	logger := log.FromCtx(ctx)
	html := strings.TrimSpace(conv.MarkdownToTelegramHTML([]byte(md)))
	if html == "" {
		return nil
	}

	chunks := splitHTML(html, maxTelegramMsgLen)
	for i, chunk := range chunks {
		opts := []interface{}{tele.ModeHTML}
		if silent && i == 0 {
			opts = append(opts, tele.Silent)
		}
		if markup != nil && i == len(chunks)-1 {
			opts = append(opts, markup)
		}

		if _, err := s.bot.Send(to, chunk, opts...); err != nil {
			logger.Error().Err(err).Int("chunk", i).Int("len", len(chunk)).Msg("failed to send telegram chunk")
			return err
		}
	}
	return nil
}

// splitHTML splits text into chunks respecting Telegram's limit.
// It tries to split at newlines to preserve formatting.
func splitHTML(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cut := maxLen
		// Try to find a good break point (newline) in the second half of the chunk
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/3 {
			cut = idx
		}

		chunks = append(chunks, text[:cut])
		text = strings.TrimSpace(text[cut:])
	}
	return chunks
}
