package usecases

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/perzivalh/botsito-podopie/internal/entities"
	"github.com/perzivalh/botsito-podopie/internal/flow"
	"github.com/perzivalh/botsito-podopie/internal/infrastructure"
	"github.com/perzivalh/botsito-podopie/internal/interfaces"
)

// maxAutoHops bounds chained content nodes (WELCOME -> MAIN_MENU style)
// so a miswired flow cannot loop the renderer.
const maxAutoHops = 8

// Engine is the conversational state machine. One instance serves every
// channel; per-identity serialization lives in the SessionStore, so
// events for different users resolve fully in parallel.
type Engine struct {
	flows    *flow.Registry
	sessions *infrastructure.SessionStore
	dedup    *infrastructure.DedupGate
	sink     interfaces.CaptureSink
	notifier interfaces.HandoffNotifier
	limiter  *infrastructure.MessageRateLimiter
	composer Composer

	channels       map[string]interfaces.Messenger
	defaultChannel string
}

func NewEngine(flows *flow.Registry, sessions *infrastructure.SessionStore, dedup *infrastructure.DedupGate, sink interfaces.CaptureSink) *Engine {
	return &Engine{
		flows:          flows,
		sessions:       sessions,
		dedup:          dedup,
		sink:           sink,
		channels:       make(map[string]interfaces.Messenger),
		defaultChannel: "whatsapp",
	}
}

// RegisterChannel wires an outbound messenger for a channel name.
// Replies go out on the channel the inbound event arrived on.
func (e *Engine) RegisterChannel(name string, m interfaces.Messenger) {
	e.channels[name] = m
}

func (e *Engine) SetNotifier(n interfaces.HandoffNotifier) {
	e.notifier = n
}

func (e *Engine) SetRateLimiter(l *infrastructure.MessageRateLimiter) {
	e.limiter = l
}

// Sessions exposes the store for the diagnostic read path.
func (e *Engine) Sessions() *infrastructure.SessionStore {
	return e.sessions
}

// Handle runs one inbound message through the pipeline: dedup gate,
// classifier, per-identity resolution, delivery. The session update is
// applied before any send, so a delivery failure never rolls back
// conversational progress.
func (e *Engine) Handle(msg entities.InboundMessage) {
	logIncoming(msg)

	if e.dedup.Seen(msg.ID) {
		log.Printf("[BOT] duplicate message ignored: %s", msg.ID)
		return
	}

	ev := Classify(msg)
	if ev.Kind == entities.EventUnsupported {
		log.Printf("[BOT] unsupported message type %q from %s, dropped", msg.Type, msg.From)
		return
	}

	e.sessions.Do(msg.From, func(s *entities.Session) {
		replies := e.resolve(s, ev)
		e.deliver(msg.Channel, msg.From, replies)
	})
}

func (e *Engine) resolve(s *entities.Session, ev entities.Event) []entities.OutboundMessage {
	f := e.flows.Active()
	if f == nil {
		log.Printf("[BOT] no active flow, dropping event from %s", s.WaID)
		return nil
	}

	if ev.Kind == entities.EventSelection {
		return e.resolveSelection(f, s, ev)
	}
	return e.resolveText(f, s, ev.Body)
}

func (e *Engine) resolveSelection(f *flow.Flow, s *entities.Session, ev entities.Event) []entities.OutboundMessage {
	if ev.ID == RestartSelectionID {
		s.Reset()
		return e.enter(f, s, f.StartNodeID)
	}

	switch s.State {
	case StateWaitDay:
		if optionTitle(dayOptions, ev.ID) != "Sin definir" {
			return e.applyDay(s, ev.ID)
		}
		return []entities.OutboundMessage{e.composer.Prompt(promptAskDay, dayOptions)}

	case StateWaitTime:
		if optionTitle(timeOptions, ev.ID) != "Sin definir" {
			return e.applyTime(s, ev.ID)
		}
		return []entities.OutboundMessage{e.composer.Prompt(promptAskTime, timeOptions)}

	case StateWaitConfirm:
		switch ev.ID {
		case ConfirmBooking:
			return e.commitBooking(f, s)
		case CancelBooking:
			return e.cancelBooking(f, s)
		}
		return []entities.OutboundMessage{e.composer.Prompt(bookingSummary(s), confirmOptions)}

	case StateWaitName, StateWaitReason, StateWaitPaymentID:
		// These steps want typed input; a stray tap re-prompts.
		return e.renderStep(s)

	default:
		if s.State == entities.StateNew {
			// Fresh session: walk the start chain so the first tap
			// lands on a real menu before anything is matched.
			start := f.Start()
			matched := false
			for _, t := range start.Transitions {
				if ev.ID == t.Next || ev.ID == t.Label || (ev.Label != "" && ev.Label == t.Label) {
					matched = true
					break
				}
			}
			if !matched {
				return e.enter(f, s, f.StartNodeID)
			}
		}
		node := e.currentNode(f, s)
		for _, t := range node.Transitions {
			if ev.ID == t.Next || ev.ID == t.Label || (ev.Label != "" && ev.Label == t.Label) {
				return e.enter(f, s, t.Next)
			}
		}
		// No transition matched: re-render, never guess.
		return []entities.OutboundMessage{e.composer.RenderNode(node)}
	}
}

func (e *Engine) resolveText(f *flow.Flow, s *entities.Session, body string) []entities.OutboundMessage {
	normalized := Normalize(body)

	// Sentinels work from any state, however deep the session is.
	if normalized == "menu" || normalized == "0" {
		s.Reset()
		return e.enter(f, s, f.StartNodeID)
	}
	if normalized == "cancelar" {
		s.Reset()
		out := []entities.OutboundMessage{e.composer.Text(msgCancelled)}
		return append(out, e.enter(f, s, f.StartNodeID)...)
	}

	switch s.State {
	case StateWaitName:
		name := strings.TrimSpace(body)
		if name == "" {
			return []entities.OutboundMessage{e.composer.Text(promptNameAgain)}
		}
		s.SetField(fieldName, name)
		s.State = StateWaitReason
		return []entities.OutboundMessage{e.composer.Text(promptAskReason)}

	case StateWaitReason:
		reason := strings.TrimSpace(body)
		if reason == "" {
			return []entities.OutboundMessage{e.composer.Text(promptReasonMore)}
		}
		s.SetField(fieldReason, reason)
		s.State = StateWaitDay
		return []entities.OutboundMessage{e.composer.Prompt(promptAskDay, dayOptions)}

	case StateWaitDay:
		if id, ok := matchKeyword(dayKeywords, normalized); ok {
			return e.applyDay(s, id)
		}
		return []entities.OutboundMessage{e.composer.Prompt(promptAskDay, dayOptions)}

	case StateWaitTime:
		if id, ok := matchKeyword(timeKeywords, normalized); ok {
			return e.applyTime(s, id)
		}
		return []entities.OutboundMessage{e.composer.Prompt(promptAskTime, timeOptions)}

	case StateWaitConfirm:
		if strings.Contains(normalized, "confirm") {
			return e.commitBooking(f, s)
		}
		if strings.Contains(normalized, "cancel") {
			return e.cancelBooking(f, s)
		}
		return []entities.OutboundMessage{e.composer.Prompt(bookingSummary(s), confirmOptions)}

	case StateWaitPaymentID:
		identifier := strings.TrimSpace(body)
		if identifier == "" {
			return []entities.OutboundMessage{e.composer.Text(promptPayIDAgain)}
		}
		return e.commitPayment(f, s, identifier)

	default:
		// Graph-driven state: free text never advances a menu node.
		if s.State == entities.StateNew {
			return e.enter(f, s, f.StartNodeID)
		}
		node := e.currentNode(f, s)
		return []entities.OutboundMessage{e.composer.RenderNode(node)}
	}
}

// currentNode resolves the session state to a node, falling back to the
// start node for fresh sessions and for states orphaned by a flow reload.
func (e *Engine) currentNode(f *flow.Flow, s *entities.Session) *flow.Node {
	if s.State == entities.StateNew {
		return f.Start()
	}
	node, ok := f.Node(s.State)
	if !ok {
		log.Printf("[BOT] state %s of %s no longer exists in flow %s, resetting", s.State, s.WaID, f.ID)
		s.Reset()
		return f.Start()
	}
	return node
}

// enter walks into a node, chaining through unconditional content nodes
// and dispatching action tags. It owns the only writes to graph state.
func (e *Engine) enter(f *flow.Flow, s *entities.Session, nodeID string) []entities.OutboundMessage {
	var out []entities.OutboundMessage

	id := nodeID
	for hops := 0; ; hops++ {
		node, ok := f.Node(id)
		if !ok {
			// Unreachable for validated flows.
			log.Printf("[BOT] flow %s references missing node %s", f.ID, id)
			s.Reset()
			return out
		}

		switch node.Kind {
		case flow.KindTerminal:
			if node.Text != "" {
				out = append(out, e.composer.Text(node.Text))
			}
			s.Reset()
			return out

		case flow.KindAction:
			return e.runAction(s, node, out)

		default: // content
			out = append(out, e.composer.RenderNode(node))
			if node.Next != "" && hops < maxAutoHops {
				id = node.Next
				continue
			}
			s.State = node.ID
			return out
		}
	}
}

// runAction starts a collection procedure or signals a human hand-off.
func (e *Engine) runAction(s *entities.Session, node *flow.Node, out []entities.OutboundMessage) []entities.OutboundMessage {
	switch node.Action {
	case ActionCollectBooking:
		s.State = StateWaitName
		s.Fields = nil
		return append(out, e.composer.Text(promptAskName))

	case ActionCollectPayment:
		s.State = StateWaitPaymentID
		s.Fields = nil
		return append(out, e.composer.Text(promptAskPayID))

	default:
		if e.notifier != nil {
			e.notifier.NotifyHandoff(s.WaID, node.Action)
		}
		if node.Text != "" {
			out = append(out, e.composer.Text(node.Text))
		}
		s.Reset()
		return out
	}
}

// renderStep re-emits the prompt for the current procedural step.
func (e *Engine) renderStep(s *entities.Session) []entities.OutboundMessage {
	switch s.State {
	case StateWaitName:
		return []entities.OutboundMessage{e.composer.Text(promptAskName)}
	case StateWaitReason:
		return []entities.OutboundMessage{e.composer.Text(promptAskReason)}
	case StateWaitPaymentID:
		return []entities.OutboundMessage{e.composer.Text(promptAskPayID)}
	}
	return nil
}

func (e *Engine) applyDay(s *entities.Session, dayID string) []entities.OutboundMessage {
	s.SetField(fieldDatePref, optionTitle(dayOptions, dayID))
	s.State = StateWaitTime
	return []entities.OutboundMessage{e.composer.Prompt(promptAskTime, timeOptions)}
}

func (e *Engine) applyTime(s *entities.Session, timeID string) []entities.OutboundMessage {
	s.SetField(fieldTimePref, optionTitle(timeOptions, timeID))
	s.State = StateWaitConfirm
	return []entities.OutboundMessage{e.composer.Prompt(bookingSummary(s), confirmOptions)}
}

// commitBooking writes the lead exactly once and resets immediately, so
// a redelivered or re-typed confirmation lands on a fresh session and
// cannot trigger a second write. A failed write is logged and the reset
// still happens: the user is not walked back through completed questions.
func (e *Engine) commitBooking(f *flow.Flow, s *entities.Session) []entities.OutboundMessage {
	lead := &entities.Lead{
		WaID:     s.WaID,
		Name:     s.Field(fieldName),
		Reason:   s.Field(fieldReason),
		DatePref: s.Field(fieldDatePref),
		TimePref: s.Field(fieldTimePref),
	}
	if e.sink != nil {
		if err := e.sink.InsertLead(context.Background(), lead); err != nil {
			log.Printf("[BOT] lead write failed for %s: %v", s.WaID, err)
		}
	}

	s.Reset()
	out := []entities.OutboundMessage{e.composer.Text(msgLeadReceived)}
	return append(out, e.enter(f, s, f.StartNodeID)...)
}

func (e *Engine) cancelBooking(f *flow.Flow, s *entities.Session) []entities.OutboundMessage {
	s.Reset()
	out := []entities.OutboundMessage{e.composer.Text(msgCancelled)}
	return append(out, e.enter(f, s, f.StartNodeID)...)
}

func (e *Engine) commitPayment(f *flow.Flow, s *entities.Session, identifier string) []entities.OutboundMessage {
	pr := &entities.PaymentRequest{WaID: s.WaID, Identifier: identifier}
	if e.sink != nil {
		if err := e.sink.InsertPaymentRequest(context.Background(), pr); err != nil {
			log.Printf("[BOT] payment request write failed for %s: %v", s.WaID, err)
		}
	}

	s.Reset()
	out := []entities.OutboundMessage{e.composer.Text(msgPayIDReceived)}
	return append(out, e.enter(f, s, f.StartNodeID)...)
}

func (e *Engine) deliver(channel, to string, msgs []entities.OutboundMessage) {
	if len(msgs) == 0 {
		return
	}

	m := e.channels[channel]
	if m == nil {
		m = e.channels[e.defaultChannel]
	}
	if m == nil {
		log.Printf("[BOT] no messenger for channel %q, %d replies dropped", channel, len(msgs))
		return
	}

	for _, msg := range msgs {
		if e.limiter != nil && !e.limiter.Allow(to) {
			log.Printf("[BOT] outbound throttled for %s", to)
			return
		}
		if err := m.Send(to, msg); err != nil {
			log.Printf("[BOT] send failed for %s: %v", to, err)
		}
	}
}

func logIncoming(msg entities.InboundMessage) {
	ts := time.Now().UTC()
	if msg.Timestamp > 0 {
		ts = time.Unix(msg.Timestamp, 0).UTC()
	}
	payload := msg.Text
	if msg.Type == "interactive" {
		payload = msg.ReplyID
		if msg.ReplyText != "" {
			payload += " | " + msg.ReplyText
		}
	}
	log.Printf("[WA] %s wa_id=%s message_id=%s type=%s payload=%q",
		ts.Format(time.RFC3339), msg.From, msg.ID, msg.Type, payload)
}
