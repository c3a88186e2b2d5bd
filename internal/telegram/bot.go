// Package telegram adapts the dialog controller to the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ndmitriev/ratepulse/internal/dialog"
	"github.com/ndmitriev/ratepulse/internal/menu"
)

// Reply-keyboard shortcuts shown once a user is ready.
const (
	buttonChangeTopic  = "Change topic"
	buttonCurrentTopic = "Current topic"
)

// Bot wraps the Telegram client. It implements dialog.Messenger and
// runs the long-poll update loop.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewBot connects to the Telegram Bot API with the given token.
func NewBot(token string, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Telegram bot authorized", "username", api.Self.UserName)
	return &Bot{api: api, logger: logger}, nil
}

// Send delivers a plain text message.
func (b *Bot) Send(ctx context.Context, userID int64, text string) (int64, error) {
	sent, err := b.api.Send(tgbotapi.NewMessage(userID, text))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return int64(sent.MessageID), nil
}

// SendChoice delivers a message with an inline keyboard, one choice
// per row.
func (b *Bot) SendChoice(ctx context.Context, userID int64, text string, choices menu.Menu) (int64, error) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices.Items))
	for _, item := range choices.Items {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(item.Label, item.Payload),
		))
	}

	msg := tgbotapi.NewMessage(userID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send choice prompt: %w", err)
	}
	return int64(sent.MessageID), nil
}

// ShowHome sends the text with the persistent reply keyboard attached
// and installs the per-chat command menu.
func (b *Bot) ShowHome(ctx context.Context, userID int64, text string) error {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonChangeTopic),
			tgbotapi.NewKeyboardButton(buttonCurrentTopic),
		),
	)
	keyboard.ResizeKeyboard = true

	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send home keyboard: %w", err)
	}

	commands := tgbotapi.NewSetMyCommandsWithScope(
		tgbotapi.NewBotCommandScopeChat(userID),
		tgbotapi.BotCommand{Command: "start", Description: "Start or refresh the bot"},
		tgbotapi.BotCommand{Command: "help", Description: "Show help"},
		tgbotapi.BotCommand{Command: "change_institution", Description: "Change institution"},
		tgbotapi.BotCommand{Command: "current_institution", Description: "Show current institution"},
		tgbotapi.BotCommand{Command: "change_topic", Description: "Change topic"},
		tgbotapi.BotCommand{Command: "current_topic", Description: "Show current topic"},
	)
	if _, err := b.api.Request(commands); err != nil {
		// The keyboard already went out; a missing command menu is
		// not worth failing the whole contact for.
		b.logger.Warn("failed to set command menu", "user_id", userID, "error", err)
	}
	return nil
}

// Retire deletes previously sent messages. Telegram rejects deletes of
// sufficiently old messages, so failures are reported but partial
// removal is expected.
func (b *Bot) Retire(ctx context.Context, userID int64, messageIDs ...int64) error {
	var lastErr error
	for _, id := range messageIDs {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(userID, int(id))); err != nil {
			lastErr = fmt.Errorf("delete message %d: %w", id, err)
		}
	}
	return lastErr
}

// Run consumes updates until the context is cancelled, dispatching
// each one to the controller. A single loop keeps per-user arrival
// order intact.
func (b *Bot) Run(ctx context.Context, ctrl *dialog.Controller) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, ctrl, update)
		}
	}
}

// handleUpdate routes one update: callback queries first, then
// commands, then the keyboard shortcuts, then free text.
func (b *Bot) handleUpdate(ctx context.Context, ctrl *dialog.Controller, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		cb := update.CallbackQuery
		if cb.Message == nil {
			return
		}
		chatID := cb.Message.Chat.ID
		if err := ctrl.OnSelection(ctx, chatID, cb.Data); err != nil {
			b.logger.Error("selection handling failed", "user_id", chatID, "error", err)
		}
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.logger.Debug("failed to answer callback query", "error", err)
		}
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	messageID := int64(msg.MessageID)

	var err error
	switch {
	case msg.IsCommand():
		err = b.handleCommand(ctx, ctrl, chatID, messageID, msg.Command())
	case msg.Text == buttonChangeTopic:
		err = ctrl.ChangeTopic(ctx, chatID, messageID)
	case msg.Text == buttonCurrentTopic:
		err = ctrl.CurrentTopic(ctx, chatID)
	case msg.Text != "":
		err = ctrl.OnText(ctx, chatID, messageID, msg.Text, time.Unix(int64(msg.Date), 0))
	}
	if err != nil {
		b.logger.Error("message handling failed", "user_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, ctrl *dialog.Controller, chatID, messageID int64, command string) error {
	switch command {
	case "start":
		return ctrl.OnContact(ctx, chatID)
	case "help":
		return ctrl.Help(ctx, chatID)
	case "change_institution":
		return ctrl.ChangeInstitution(ctx, chatID, messageID)
	case "current_institution":
		return ctrl.CurrentInstitution(ctx, chatID)
	case "change_topic":
		return ctrl.ChangeTopic(ctx, chatID, messageID)
	case "current_topic":
		return ctrl.CurrentTopic(ctx, chatID)
	default:
		b.logger.Debug("unknown command ignored", "user_id", chatID, "command", command)
		return nil
	}
}
