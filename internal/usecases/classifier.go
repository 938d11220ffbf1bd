package usecases

import "github.com/perzivalh/botsito-podopie/internal/entities"

// Classify normalizes a raw inbound message into the engine's closed
// event set. Only text and interactive replies are supported; anything
// else (media, reactions, delivery receipts) classifies as unsupported
// and is dropped without a reply, so non-user events never echo.
func Classify(msg entities.InboundMessage) entities.Event {
	switch msg.Type {
	case "text":
		return entities.Event{Kind: entities.EventText, Body: msg.Text}
	case "interactive":
		if msg.ReplyID == "" {
			return entities.Event{Kind: entities.EventUnsupported}
		}
		return entities.Event{
			Kind:  entities.EventSelection,
			ID:    msg.ReplyID,
			Label: msg.ReplyText,
		}
	default:
		return entities.Event{Kind: entities.EventUnsupported}
	}
}
