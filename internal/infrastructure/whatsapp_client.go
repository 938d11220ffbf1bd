package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

// WhatsAppClient wraps one whatsmeow (WhatsApp Web) session. It is the
// alternate channel for tenants without Cloud API access: inbound text
// flows into the engine like webhook events, and interactive prompts
// degrade to numbered text since WhatsApp Web has no reply buttons.
type WhatsAppClient struct {
	Client *whatsmeow.Client

	Device string // device slug, names the sqlite store file

	qrCode string
	qrLock sync.RWMutex
}

func NewWhatsAppClient(dbPath, device string) (*WhatsAppClient, error) {
	dbLog := waLog.Stdout("Database", "INFO", true)
	container, err := sqlstore.New(context.Background(), "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	client := whatsmeow.NewClient(deviceStore, clientLog)

	return &WhatsAppClient{
		Client: client,
		Device: device,
	}, nil
}

func (w *WhatsAppClient) Connect() error {
	if w.Client.Store.ID == nil {
		// No ID stored, new login
		qrChan, _ := w.Client.GetQRChannel(context.Background())
		if err := w.Client.Connect(); err != nil {
			return err
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					w.qrLock.Lock()
					w.qrCode = evt.Code
					w.qrLock.Unlock()
					fmt.Printf("[WAWEB] device %s: new QR code\n", w.Device)
				} else {
					fmt.Printf("[WAWEB] device %s: login event %s\n", w.Device, evt.Event)
				}
			}
		}()
		return nil
	}

	// Already paired
	if err := w.Client.Connect(); err != nil {
		return err
	}
	fmt.Printf("[WAWEB] device %s connected (existing session)\n", w.Device)
	return nil
}

func (w *WhatsAppClient) GetQR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

// GetUserInfo returns the paired phone number and push name.
func (w *WhatsAppClient) GetUserInfo() (string, string) {
	if w.Client.Store.ID == nil {
		return "", ""
	}
	return w.Client.Store.ID.User, w.Client.Store.PushName
}

func (w *WhatsAppClient) Logout() error {
	w.qrLock.Lock()
	w.qrCode = ""
	w.qrLock.Unlock()

	if err := w.Client.Logout(context.Background()); err != nil {
		return err
	}
	w.Client.Disconnect()
	return nil
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

func (w *WhatsAppClient) AddHandler(handler func(interface{})) {
	w.Client.AddEventHandler(handler)
}

// Send implements the Messenger contract. Button and list prompts are
// rendered as numbered text because WhatsApp Web sessions cannot send
// interactive replies.
func (w *WhatsAppClient) Send(to string, msg entities.OutboundMessage) error {
	jid, err := types.ParseJID(to + "@s.whatsapp.net")
	if err != nil {
		return fmt.Errorf("invalid number format: %w", err)
	}

	body := msg.Body
	if len(msg.Options) > 0 {
		var sb strings.Builder
		if msg.Header != "" {
			sb.WriteString("*" + msg.Header + "*\n")
		}
		sb.WriteString(msg.Body)
		sb.WriteString("\n")
		for i, opt := range msg.Options {
			sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, opt.Title))
		}
		body = sb.String()
	}

	_, err = w.Client.SendMessage(context.Background(), jid, &waProto.Message{
		Conversation: &body,
	})
	return err
}

// SendPresence broadcasts a typing indicator before replying.
func (w *WhatsAppClient) SendPresence(to string) {
	jid, _ := types.ParseJID(to + "@s.whatsapp.net")
	w.Client.SendPresence(context.Background(), types.PresenceAvailable)
	w.Client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// ParseMessage converts a whatsmeow event into the engine's inbound
// shape. Only plain and extended text carry a usable body.
func (w *WhatsAppClient) ParseMessage(evt *events.Message) entities.InboundMessage {
	var content string
	msgType := "text"

	if evt.Message.Conversation != nil {
		content = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil {
		content = *evt.Message.ExtendedTextMessage.Text
	} else {
		msgType = "unsupported"
	}

	return entities.InboundMessage{
		ID:        evt.Info.ID,
		From:      evt.Info.Sender.User,
		Type:      msgType,
		Text:      content,
		Timestamp: evt.Info.Timestamp.Unix(),
		Channel:   "whatsweb",
	}
}
