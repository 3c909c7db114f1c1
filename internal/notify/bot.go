// Package notify forwards generated images to Telegram and runs an optional
// interactive /generate flow over the same bot.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/zcc135820/imagebridge/internal/config"
	"github.com/zcc135820/imagebridge/internal/gateway"
)

// Bot wraps the Telegram API client. It satisfies gateway.Notifier, so
// every generation run through the gateway lands in the configured chat.
type Bot struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	gw      *gateway.Gateway
	pending *pendingRequests
}

// NewBot authenticates against the Telegram API. The gateway reference is
// only needed for the interactive flow and may be wired after construction.
func NewBot(cfg config.Telegram) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram auth failed: %w", err)
	}
	log.Infof("notify: telegram bot authorized as @%s", api.Self.UserName)
	return &Bot{
		api:     api,
		chatID:  cfg.ChatID,
		pending: newPendingRequests(),
	}, nil
}

// SetGateway enables the interactive /generate flow.
func (b *Bot) SetGateway(gw *gateway.Gateway) {
	b.gw = gw
}

// ForwardArtifact sends the image with the prompt as caption to the
// configured chat. Failures are logged and swallowed; the generation
// already succeeded by the time this runs.
func (b *Bot) ForwardArtifact(prompt string, image []byte) {
	if b.chatID == 0 {
		return
	}
	photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FileBytes{
		Name:  "image.png",
		Bytes: image,
	})
	photo.Caption = prompt
	if _, err := b.api.Send(photo); err != nil {
		log.WithFields(log.Fields{"chat": b.chatID, "error": err}).
			Warn("notify: forward failed")
		return
	}
	log.WithFields(log.Fields{"chat": b.chatID}).Debug("notify: artifact forwarded")
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			switch {
			case update.Message != nil:
				b.handleMessage(update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "generate":
		prompt := strings.TrimSpace(msg.CommandArguments())
		if prompt == "" {
			b.sendText(msg.Chat.ID, "Usage: /generate <prompt>")
			return
		}
		req := b.pending.Add(msg.Chat.ID, prompt)
		ask := tgbotapi.NewMessage(msg.Chat.ID, "Pick an aspect ratio:")
		ask.ReplyMarkup = ratioKeyboard(req.ID)
		if _, err := b.api.Send(ask); err != nil {
			log.Warnf("notify: send ratio keyboard failed: %v", err)
		}
	case "start", "help":
		b.sendText(msg.Chat.ID, "Send /generate <prompt> to create an image.")
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	_, _ = b.api.Request(tgbotapi.NewCallback(cb.ID, ""))

	parts := splitCallback(cb.Data)
	if len(parts) < 2 {
		return
	}
	id := parts[1]
	switch parts[0] {
	case "cancel":
		b.pending.Cancel(id)
		b.clearKeyboard(cb)
		b.sendText(cb.Message.Chat.ID, "Cancelled.")
	case "ratio":
		if len(parts) != 3 {
			return
		}
		if _, ok := b.pending.SetRatio(id, parts[2]); !ok {
			b.sendText(cb.Message.Chat.ID, "This request has expired, send /generate again.")
			return
		}
		edit := tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
			"Pick a quality:", resolutionKeyboard(id))
		if _, err := b.api.Send(edit); err != nil {
			log.Warnf("notify: send resolution keyboard failed: %v", err)
		}
	case "res":
		if len(parts) != 3 {
			return
		}
		req, ok := b.pending.Consume(id, parts[2])
		if !ok {
			b.sendText(cb.Message.Chat.ID, "This request has expired, send /generate again.")
			return
		}
		b.clearKeyboard(cb)
		go b.runGeneration(req)
	}
}

// runGeneration executes a consumed pending request and replies with the
// image in the originating chat.
func (b *Bot) runGeneration(req *pendingRequest) {
	if b.gw == nil {
		b.sendText(req.ChatID, "Generation is not available right now.")
		return
	}
	b.sendText(req.ChatID, "Generating...")

	result, err := b.gw.Generate(context.Background(), gateway.Request{
		Prompt:         req.Prompt,
		Ratio:          req.Ratio,
		Resolution:     req.Resolution,
		ResponseFormat: gateway.FormatB64JSON,
	})
	if err != nil {
		log.WithFields(log.Fields{"chat": req.ChatID, "error": err}).
			Warn("notify: interactive generation failed")
		b.sendText(req.ChatID, "Generation failed: "+err.Error())
		return
	}

	image, err := base64.StdEncoding.DecodeString(result.B64JSON)
	if err != nil {
		b.sendText(req.ChatID, "Generation produced an unreadable image.")
		return
	}
	photo := tgbotapi.NewPhoto(req.ChatID, tgbotapi.FileBytes{
		Name:  "image.png",
		Bytes: image,
	})
	photo.Caption = req.Prompt
	if _, err = b.api.Send(photo); err != nil {
		log.Warnf("notify: send generated photo failed: %v", err)
	}
}

// splitCallback splits "action:id[:value]" keeping colons inside the value,
// which matters for ratios like 21:9.
func splitCallback(data string) []string {
	return strings.SplitN(data, ":", 3)
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Warnf("notify: send message failed: %v", err)
	}
}

func (b *Bot) clearKeyboard(cb *tgbotapi.CallbackQuery) {
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	if _, err := b.api.Send(edit); err != nil {
		log.Debugf("notify: clear keyboard failed: %v", err)
	}
}

func ratioKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(gateway.Ratios)/3+2)
	row := make([]tgbotapi.InlineKeyboardButton, 0, 3)
	for _, ratio := range gateway.Ratios {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(ratio, "ratio:"+id+":"+ratio))
		if len(row) == 3 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 3)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancel:"+id)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func resolutionKeyboard(id string) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(gateway.Resolutions))
	for _, res := range gateway.Resolutions {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(res, "res:"+id+":"+res))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancel:"+id)))
}
