package entities

// InboundMessage is one provider event normalized by the channel that
// received it (Cloud API webhook, WhatsApp Web, Telegram).
type InboundMessage struct {
	ID        string // provider message id, empty if the channel has none
	From      string // end-user identity (wa_id or chat id)
	Type      string // provider type string: "text", "interactive", ...
	Text      string // body for text messages
	ReplyID   string // option id for button/list replies
	ReplyText string // option title for button/list replies
	Timestamp int64  // provider timestamp (unix seconds), 0 if absent
	Channel   string // e.g., "whatsapp", "whatsweb", "telegram"
}

type EventKind int

const (
	EventUnsupported EventKind = iota
	EventText
	EventSelection
)

// Event is the classified form of an InboundMessage.
type Event struct {
	Kind  EventKind
	Body  string // EventText
	ID    string // EventSelection: stable option id
	Label string // EventSelection: option title as shown to the user
}

// Option is one selectable choice in a button or list prompt. ID
// round-trips back as Event.ID when the user picks it.
type Option struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type OutboundKind int

const (
	OutboundText OutboundKind = iota
	OutboundButtons
	OutboundList
)

// OutboundMessage is one reply to deliver. Channels decide how to map
// button/list prompts onto their own primitives.
type OutboundMessage struct {
	Kind        OutboundKind
	Body        string
	Header      string   // list prompts only
	ButtonLabel string   // list prompts only ("Ver opciones")
	Options     []Option // buttons/list
}
