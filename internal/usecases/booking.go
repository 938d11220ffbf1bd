package usecases

import (
	"fmt"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

// Procedural states. These live in the same session State slot as flow
// node ids; flows must not reuse these names.
const (
	StateWaitName      = "WAIT_NAME"
	StateWaitReason    = "WAIT_REASON"
	StateWaitDay       = "WAIT_DAY"
	StateWaitTime      = "WAIT_TIME"
	StateWaitConfirm   = "WAIT_CONFIRM"
	StateWaitPaymentID = "WAIT_PAYMENT_ID"
)

// Action tags that start a procedural collection flow instead of a
// human hand-off. Flow documents reference them on action nodes.
const (
	ActionCollectBooking = "collect:booking"
	ActionCollectPayment = "collect:payment"
)

// RestartSelectionID resets the session from any state and re-emits the
// flow start, regardless of the current prompt.
const RestartSelectionID = "RESTART_FLOW"

// Stable option ids for procedural prompts. They round-trip through
// button/list replies and double as keyword-match results.
const (
	DayToday    = "DAY_TODAY"
	DayTomorrow = "DAY_TOMORROW"
	DayWeek     = "DAY_WEEK"

	TimeMorning   = "TIME_MORNING"
	TimeAfternoon = "TIME_AFTERNOON"
	TimeNight     = "TIME_NIGHT"

	ConfirmBooking = "CONFIRM_APPOINTMENT"
	CancelBooking  = "CANCEL_APPOINTMENT"
)

// Collected field names, matching the lead table columns.
const (
	fieldName     = "name"
	fieldReason   = "reason"
	fieldDatePref = "date_pref"
	fieldTimePref = "time_pref"
)

var dayOptions = []entities.Option{
	{ID: DayToday, Title: "Hoy"},
	{ID: DayTomorrow, Title: "Mañana"},
	{ID: DayWeek, Title: "Esta semana"},
}

var timeOptions = []entities.Option{
	{ID: TimeMorning, Title: "Mañana"},
	{ID: TimeAfternoon, Title: "Tarde"},
	{ID: TimeNight, Title: "Noche"},
}

var confirmOptions = []entities.Option{
	{ID: ConfirmBooking, Title: "Confirmar"},
	{ID: CancelBooking, Title: "Cancelar"},
}

// Keyword vocabularies for free-typed answers, scanned in order. "manana"
// appears in both tables: on the day step it means tomorrow, on the time
// step it means morning.
var dayKeywords = []keywordRule{
	{"hoy", DayToday},
	{"manana", DayTomorrow},
	{"semana", DayWeek},
}

var timeKeywords = []keywordRule{
	{"manana", TimeMorning},
	{"tarde", TimeAfternoon},
	{"noche", TimeNight},
}

const (
	promptAskName    = "Perfecto. ¿Cuál es tu nombre completo?"
	promptNameAgain  = "Necesito tu nombre completo para continuar."
	promptAskReason  = "Gracias. ¿Cuál es el motivo de la consulta? (uña encarnada, hongos, callos, etc.)"
	promptReasonMore = "Contame brevemente el motivo de la consulta."
	promptAskDay     = "¿Qué día preferís?"
	promptAskTime    = "¿Qué rango horario preferís?"
	promptAskPayID   = "Para ver pagos y pendientes necesitamos validar tu identidad. Escribí tu CI o tu NIT."
	promptPayIDAgain = "Escribí tu CI o tu NIT para continuar."

	msgCancelled     = "Listo, cancelado."
	msgLeadReceived  = "✅ Listo, recibimos tu solicitud. En breve te confirmamos por este WhatsApp."
	msgPayIDReceived = "✅ Recibido, lo revisamos."
)

func optionTitle(options []entities.Option, id string) string {
	for _, opt := range options {
		if opt.ID == id {
			return opt.Title
		}
	}
	return "Sin definir"
}

func bookingSummary(s *entities.Session) string {
	return fmt.Sprintf(
		"Resumen:\nNombre: %s\nMotivo: %s\nDía: %s\nHorario: %s\n\n¿Confirmamos?",
		s.Field(fieldName), s.Field(fieldReason), s.Field(fieldDatePref), s.Field(fieldTimePref),
	)
}
