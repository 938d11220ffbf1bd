package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perzivalh/botsito-podopie/internal/entities"
	"github.com/perzivalh/botsito-podopie/internal/flow"
	"github.com/perzivalh/botsito-podopie/internal/infrastructure"
)

const testFlowDoc = `{
  "id": "clinic",
  "name": "Clinic",
  "start_node_id": "WELCOME",
  "nodes": [
    { "id": "WELCOME", "kind": "content", "text": "Bienvenida", "next": "MENU" },
    {
      "id": "MENU",
      "kind": "content",
      "text": "Menú principal",
      "buttons": [
        { "label": "Agendar cita", "next": "BOOK" },
        { "label": "Pagos", "next": "PAY" },
        { "label": "Ubicación", "next": "LEAF1" },
        { "label": "Humano", "next": "HANDOFF" }
      ]
    },
    { "id": "LEAF1", "kind": "content", "text": "Dirección de la clínica" },
    { "id": "BOOK", "kind": "action", "action": "collect:booking" },
    { "id": "PAY", "kind": "action", "action": "collect:payment" },
    { "id": "HANDOFF", "kind": "action", "action": "ATENCION_PERSONALIZADA", "text": "Te derivamos." }
  ]
}`

type sentMessage struct {
	to  string
	msg entities.OutboundMessage
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *fakeMessenger) Send(to string, msg entities.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: to, msg: msg})
	return nil
}

func (m *fakeMessenger) all() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *fakeMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeSink struct {
	mu       sync.Mutex
	leads    []entities.Lead
	payments []entities.PaymentRequest
	fail     bool
}

func (s *fakeSink) InsertLead(_ context.Context, lead *entities.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database down")
	}
	s.leads = append(s.leads, *lead)
	return nil
}

func (s *fakeSink) InsertPaymentRequest(_ context.Context, pr *entities.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("database down")
	}
	s.payments = append(s.payments, *pr)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyHandoff(waID, action string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, waID+":"+action)
}

type testRig struct {
	engine    *Engine
	messenger *fakeMessenger
	sink      *fakeSink
	notifier  *fakeNotifier
	msgSeq    int
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clinic.flow.json"), []byte(testFlowDoc), 0644))

	reg := flow.NewRegistry(dir)
	require.NoError(t, reg.Reload())
	require.NoError(t, reg.Activate("clinic"))

	rig := &testRig{
		messenger: &fakeMessenger{},
		sink:      &fakeSink{},
		notifier:  &fakeNotifier{},
	}
	rig.engine = NewEngine(reg, infrastructure.NewSessionStore(), infrastructure.NewDedupGate(200), rig.sink)
	rig.engine.RegisterChannel("whatsapp", rig.messenger)
	rig.engine.SetNotifier(rig.notifier)
	return rig
}

func (r *testRig) text(from, body string) entities.InboundMessage {
	r.msgSeq++
	return entities.InboundMessage{
		ID:      fmt.Sprintf("wamid.%d", r.msgSeq),
		From:    from,
		Type:    "text",
		Text:    body,
		Channel: "whatsapp",
	}
}

func (r *testRig) tap(from, id, label string) entities.InboundMessage {
	r.msgSeq++
	return entities.InboundMessage{
		ID:        fmt.Sprintf("wamid.%d", r.msgSeq),
		From:      from,
		Type:      "interactive",
		ReplyID:   id,
		ReplyText: label,
		Channel:   "whatsapp",
	}
}

func (r *testRig) state(waID string) string {
	var state string
	r.engine.Sessions().Do(waID, func(s *entities.Session) {
		state = s.State
	})
	return state
}

func TestFirstContactRendersStartChain(t *testing.T) {
	rig := newTestRig(t)

	rig.engine.Handle(rig.text("u1", "hola"))

	sent := rig.messenger.all()
	require.Len(t, sent, 2, "welcome text then menu prompt")
	assert.Equal(t, entities.OutboundText, sent[0].msg.Kind)
	assert.Equal(t, "Bienvenida", sent[0].msg.Body)
	assert.Equal(t, entities.OutboundList, sent[1].msg.Kind, "four options exceed the button limit")
	assert.Len(t, sent[1].msg.Options, 4)
	assert.Equal(t, "MENU", rig.state("u1"))
}

func TestMenuSelectionEntersLeaf(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))

	rig.engine.Handle(rig.tap("u1", "LEAF1", "Ubicación"))

	last := rig.messenger.last()
	assert.Equal(t, "Dirección de la clínica", last.msg.Body)
	assert.Equal(t, "LEAF1", rig.state("u1"))
}

func TestUnknownSelectionReRendersCurrentNode(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	before := rig.messenger.count()

	rig.engine.Handle(rig.tap("u1", "STALE_OPTION", "Viejo"))

	sent := rig.messenger.all()
	require.Len(t, sent, before+1)
	assert.Equal(t, "Menú principal", sent[before].msg.Body, "never guess, re-offer the menu")
	assert.Equal(t, "MENU", rig.state("u1"))
}

func TestFreeTextOnMenuReRenders(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))

	rig.engine.Handle(rig.text("u1", "quisiera informacion"))

	assert.Equal(t, "Menú principal", rig.messenger.last().msg.Body)
	assert.Equal(t, "MENU", rig.state("u1"))
}

func TestFullBookingProducesExactlyOneLead(t *testing.T) {
	rig := newTestRig(t)

	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	assert.Equal(t, StateWaitName, rig.state("u1"))
	assert.Equal(t, promptAskName, rig.messenger.last().msg.Body)

	rig.engine.Handle(rig.text("u1", "Ana María López"))
	assert.Equal(t, StateWaitReason, rig.state("u1"))

	rig.engine.Handle(rig.text("u1", "uña encarnada"))
	assert.Equal(t, StateWaitDay, rig.state("u1"))

	// Accent-folded free text matches the day vocabulary.
	rig.engine.Handle(rig.text("u1", "Mañana"))
	assert.Equal(t, StateWaitTime, rig.state("u1"))

	rig.engine.Handle(rig.text("u1", "por la noche"))
	assert.Equal(t, StateWaitConfirm, rig.state("u1"))
	summary := rig.messenger.last().msg
	assert.Contains(t, summary.Body, "Ana María López")
	assert.Contains(t, summary.Body, "uña encarnada")
	assert.Contains(t, summary.Body, "Mañana")
	assert.Contains(t, summary.Body, "Noche")

	rig.engine.Handle(rig.tap("u1", ConfirmBooking, "Confirmar"))

	require.Len(t, rig.sink.leads, 1)
	lead := rig.sink.leads[0]
	assert.Equal(t, "u1", lead.WaID)
	assert.Equal(t, "Ana María López", lead.Name)
	assert.Equal(t, "uña encarnada", lead.Reason)
	assert.Equal(t, "Mañana", lead.DatePref)
	assert.Equal(t, "Noche", lead.TimePref)

	// Session lands back on the menu with cleared fields.
	assert.Equal(t, "MENU", rig.state("u1"))
	rig.engine.Sessions().Do("u1", func(s *entities.Session) {
		assert.Empty(t, s.Fields)
	})
}

func TestBookingViaButtonTaps(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))

	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Juan Pérez"))
	rig.engine.Handle(rig.text("u1", "hongos"))
	rig.engine.Handle(rig.tap("u1", DayToday, "Hoy"))
	rig.engine.Handle(rig.tap("u1", TimeAfternoon, "Tarde"))
	rig.engine.Handle(rig.tap("u1", ConfirmBooking, "Confirmar"))

	require.Len(t, rig.sink.leads, 1)
	assert.Equal(t, "Hoy", rig.sink.leads[0].DatePref)
	assert.Equal(t, "Tarde", rig.sink.leads[0].TimePref)
}

func TestFirstTapOnFreshSessionEntersStartChain(t *testing.T) {
	rig := newTestRig(t)

	// A tap from a brand-new session (for example a forwarded button)
	// must land on the menu, not match against the welcome node.
	rig.engine.Handle(rig.tap("u1", DayToday, "Hoy"))

	assert.Equal(t, "MENU", rig.state("u1"))
	assert.Equal(t, entities.OutboundList, rig.messenger.last().msg.Kind)
}

func TestInvalidDaySelectionReprompts(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Ana"))
	rig.engine.Handle(rig.text("u1", "callos"))
	require.Equal(t, StateWaitDay, rig.state("u1"))

	rig.engine.Handle(rig.tap("u1", "NOT_A_DAY", "???"))

	assert.Equal(t, StateWaitDay, rig.state("u1"))
	assert.Equal(t, promptAskDay, rig.messenger.last().msg.Body)
}

func TestStrayTapDuringTypedStepReprompts(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	require.Equal(t, StateWaitName, rig.state("u1"))

	rig.engine.Handle(rig.tap("u1", DayToday, "Hoy"))

	assert.Equal(t, StateWaitName, rig.state("u1"))
	assert.Equal(t, promptAskName, rig.messenger.last().msg.Body)
}

func TestDuplicateMessageIsIgnored(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))

	dup := rig.tap("u1", "LEAF1", "Ubicación")
	rig.engine.Handle(dup)
	before := rig.messenger.count()

	rig.engine.Handle(dup)

	assert.Equal(t, before, rig.messenger.count(), "redelivery produces no sends")
	assert.Equal(t, "LEAF1", rig.state("u1"))
}

func TestDuplicateConfirmationWritesOneLead(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Ana"))
	rig.engine.Handle(rig.text("u1", "callos"))
	rig.engine.Handle(rig.text("u1", "hoy"))
	rig.engine.Handle(rig.text("u1", "tarde"))

	confirm := rig.tap("u1", ConfirmBooking, "Confirmar")
	rig.engine.Handle(confirm)
	rig.engine.Handle(confirm)

	assert.Len(t, rig.sink.leads, 1)
}

func TestMenuSentinelResetsFromDepth(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Ana"))
	require.Equal(t, StateWaitReason, rig.state("u1"))

	rig.engine.Handle(rig.text("u1", "  MENU "))

	assert.Equal(t, "MENU", rig.state("u1"))
	rig.engine.Sessions().Do("u1", func(s *entities.Session) {
		assert.Empty(t, s.Fields, "sentinel discards collected answers")
	})
	assert.Empty(t, rig.sink.leads)
}

func TestZeroSentinelResets(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))

	rig.engine.Handle(rig.text("u1", "0"))

	assert.Equal(t, "MENU", rig.state("u1"))
}

func TestCancelSentinelAcknowledgesThenResets(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Ana"))
	before := rig.messenger.count()

	rig.engine.Handle(rig.text("u1", "Cancelar"))

	sent := rig.messenger.all()
	require.Greater(t, rig.messenger.count(), before+1)
	assert.Equal(t, msgCancelled, sent[before].msg.Body)
	assert.Equal(t, "MENU", rig.state("u1"))
	assert.Empty(t, rig.sink.leads)
}

func TestRestartSelectionResetsFromAnyState(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Ana"))

	rig.engine.Handle(rig.tap("u1", RestartSelectionID, "Volver a empezar"))

	assert.Equal(t, "MENU", rig.state("u1"))
}

func TestPaymentFlow(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))

	rig.engine.Handle(rig.tap("u1", "PAY", "Pagos"))
	assert.Equal(t, StateWaitPaymentID, rig.state("u1"))
	assert.Equal(t, promptAskPayID, rig.messenger.last().msg.Body)

	rig.engine.Handle(rig.text("u1", "  4555123  "))

	require.Len(t, rig.sink.payments, 1)
	assert.Equal(t, "u1", rig.sink.payments[0].WaID)
	assert.Equal(t, "4555123", rig.sink.payments[0].Identifier, "identifier is stored trimmed")
	assert.Equal(t, "MENU", rig.state("u1"))
}

func TestHandoffActionNotifiesAndResets(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))

	rig.engine.Handle(rig.tap("u1", "HANDOFF", "Humano"))

	require.Len(t, rig.notifier.calls, 1)
	assert.Equal(t, "u1:ATENCION_PERSONALIZADA", rig.notifier.calls[0])
	assert.Equal(t, "Te derivamos.", rig.messenger.last().msg.Body)
	assert.Equal(t, entities.StateNew, rig.state("u1"))
}

func TestUnsupportedMessageIsDroppedSilently(t *testing.T) {
	rig := newTestRig(t)

	rig.msgSeq++
	rig.engine.Handle(entities.InboundMessage{
		ID:      fmt.Sprintf("wamid.%d", rig.msgSeq),
		From:    "u1",
		Type:    "image",
		Channel: "whatsapp",
	})

	assert.Equal(t, 0, rig.messenger.count())
}

func TestSinkFailureStillAdvancesConversation(t *testing.T) {
	rig := newTestRig(t)
	rig.engine.Handle(rig.text("u1", "hola"))
	rig.engine.Handle(rig.tap("u1", "BOOK", "Agendar cita"))
	rig.engine.Handle(rig.text("u1", "Ana"))
	rig.engine.Handle(rig.text("u1", "callos"))
	rig.engine.Handle(rig.text("u1", "hoy"))
	rig.engine.Handle(rig.text("u1", "tarde"))

	rig.sink.fail = true
	rig.engine.Handle(rig.tap("u1", ConfirmBooking, "Confirmar"))

	// The user is never walked back through completed questions over a
	// storage hiccup.
	assert.Equal(t, "MENU", rig.state("u1"))
	assert.Empty(t, rig.sink.leads)
}

func TestRepliesGoOutOnTheInboundChannel(t *testing.T) {
	rig := newTestRig(t)
	telegram := &fakeMessenger{}
	rig.engine.RegisterChannel("telegram", telegram)

	msg := rig.text("chat42", "hola")
	msg.Channel = "telegram"
	rig.engine.Handle(msg)

	assert.Equal(t, 0, rig.messenger.count())
	assert.Equal(t, 2, telegram.count())
	assert.Equal(t, "chat42", telegram.last().to)
}
