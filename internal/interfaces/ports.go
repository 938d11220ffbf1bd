package interfaces

import (
	"context"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

// Messenger delivers one outbound message over a channel. Delivery never
// feeds back into conversational state; failures are logged by the caller.
type Messenger interface {
	Send(to string, msg entities.OutboundMessage) error
}

// CaptureSink persists records produced by completed flows.
type CaptureSink interface {
	InsertLead(ctx context.Context, lead *entities.Lead) error
	InsertPaymentRequest(ctx context.Context, pr *entities.PaymentRequest) error
}

// HandoffNotifier is told when an action node routes a conversation to a
// human operator. Outbound only; there is no transition back into the engine.
type HandoffNotifier interface {
	NotifyHandoff(waID, action string)
}
