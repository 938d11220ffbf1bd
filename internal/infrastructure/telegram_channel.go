package infrastructure

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

// TelegramChannel adapts a Telegram bot to the engine. Inline keyboard
// callbacks round-trip option ids the same way interactive replies do on
// WhatsApp, so the same flows run on both providers.
type TelegramChannel struct {
	Bot *tgbotapi.BotAPI

	// Handler receives every normalized inbound message.
	Handler func(entities.InboundMessage)

	stop chan struct{}
}

func NewTelegramChannel(token string) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramChannel{
		Bot:  bot,
		stop: make(chan struct{}),
	}, nil
}

// Run polls for updates until Stop is called. Messages become text
// events; callback queries become selections. The /start command maps
// to the menu sentinel so Telegram users land on the flow start.
func (t *TelegramChannel) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.Bot.GetUpdatesChan(u)

	fmt.Printf("[TG] polling as @%s\n", t.Bot.Self.UserName)

	for {
		select {
		case <-t.stop:
			fmt.Println("[TG] polling stopped")
			return
		case update := <-updates:
			t.dispatch(update)
		}
	}
}

func (t *TelegramChannel) Stop() {
	close(t.stop)
}

func (t *TelegramChannel) dispatch(update tgbotapi.Update) {
	if t.Handler == nil {
		return
	}

	if update.Message != nil {
		chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
		text := update.Message.Text
		if update.Message.IsCommand() && update.Message.Command() == "start" {
			text = "menu"
		}
		t.Handler(entities.InboundMessage{
			ID:        fmt.Sprintf("tg-%d", update.Message.MessageID),
			From:      chatID,
			Type:      "text",
			Text:      text,
			Timestamp: int64(update.Message.Date),
			Channel:   "telegram",
		})
		return
	}

	if update.CallbackQuery != nil {
		// Acknowledge immediately so the client stops its spinner.
		t.Bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, ""))

		chatID := strconv.FormatInt(update.CallbackQuery.Message.Chat.ID, 10)
		t.Handler(entities.InboundMessage{
			ID:      "tgcb-" + update.CallbackQuery.ID,
			From:    chatID,
			Type:    "interactive",
			ReplyID: update.CallbackQuery.Data,
			Channel: "telegram",
		})
	}
}

// Send implements the Messenger contract. Option prompts become inline
// keyboards, two buttons per row, with the option id as callback data.
func (t *TelegramChannel) Send(to string, msg entities.OutboundMessage) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}

	body := msg.Body
	if msg.Header != "" {
		body = "*" + msg.Header + "*\n" + body
	}

	out := tgbotapi.NewMessage(chatID, body)
	out.ParseMode = "Markdown"

	if len(msg.Options) > 0 {
		var rows [][]tgbotapi.InlineKeyboardButton
		var row []tgbotapi.InlineKeyboardButton
		for i, opt := range msg.Options {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(opt.Title, opt.ID))
			if (i+1)%2 == 0 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	_, err = t.Bot.Send(out)
	return err
}
