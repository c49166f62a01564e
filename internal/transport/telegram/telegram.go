// Package telegram runs the bot over Telegram long polling.
//
// Only text messages are handled. A reply with options is sent with a
// one-time reply keyboard, one option per row. Failed events are answered
// with services.ErrorReplyText.
package telegram

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-feedback-bot/internal/services"
	"github.com/tbourn/go-feedback-bot/internal/transport"
)

// Bot is the part of *tgbotapi.BotAPI the transport uses.
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options configures a Transport.
type Options struct {
	PollTimeout time.Duration // long-poll timeout; default 60s
	Workers     int           // concurrent events; default 16
	Log         *zerolog.Logger
}

// Transport feeds Telegram updates to the conversation.
type Transport struct {
	bot   Bot
	sched transport.Scheduler
	opts  Options
}

// New returns a Transport for bot.
func New(bot Bot, sched transport.Scheduler, opts Options) *Transport {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 16
	}
	return &Transport{bot: bot, sched: sched, opts: opts}
}

// Dial connects to the Bot API with token.
func Dial(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

// Run polls until ctx is cancelled or the update channel closes, then waits
// for in-flight events to be answered.
func (t *Transport) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(t.opts.PollTimeout / time.Second)
	updates := t.bot.GetUpdatesChan(u)

	d := transport.NewDispatcher(ctx, t.sched, t.opts.Workers)
	defer d.Wait()

	t.logger().Info().Int("workers", t.opts.Workers).Msg("telegram polling started")
	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.logger().Info().Msg("telegram polling stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			t.handle(d, upd)
		}
	}
}

func (t *Transport) handle(d *transport.Dispatcher, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID
	identifier := strconv.FormatInt(chatID, 10)
	if msg.From != nil {
		identifier = strconv.FormatInt(msg.From.ID, 10)
	}

	d.Submit(identifier, MessageText(msg), func(reply services.Reply, err error) {
		if err != nil {
			t.logger().Error().Err(err).Int("update_id", upd.UpdateID).Msg("telegram event failed")
			reply = services.Reply{Text: services.ErrorReplyText}
		}
		if _, err := t.bot.Send(OutgoingMessage(chatID, reply)); err != nil {
			t.logger().Warn().Err(err).Int("update_id", upd.UpdateID).Msg("telegram send failed")
		}
	})
}

// MessageText returns the text handed to the conversation. Commands are
// normalized so "/start@SomeBot" reads as "/start".
func MessageText(msg *tgbotapi.Message) string {
	if !msg.IsCommand() {
		return msg.Text
	}
	text := "/" + msg.Command()
	if args := msg.CommandArguments(); args != "" {
		text += " " + args
	}
	return text
}

// OutgoingMessage renders reply for chatID.
func OutgoingMessage(chatID int64, reply services.Reply) tgbotapi.MessageConfig {
	m := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Options) == 0 {
		return m
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Options))
	for _, opt := range reply.Options {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(opt)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	kb.ResizeKeyboard = true
	m.ReplyMarkup = kb
	return m
}

func (t *Transport) logger() *zerolog.Logger {
	if t.opts.Log != nil {
		return t.opts.Log
	}
	return &log.Logger
}
