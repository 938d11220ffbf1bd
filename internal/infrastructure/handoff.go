package infrastructure

import "log"

// LogHandoffNotifier records hand-off signals. The real routing to a
// human inbox lives in the surrounding platform; the engine only emits
// the signal.
type LogHandoffNotifier struct{}

func NewLogHandoffNotifier() LogHandoffNotifier {
	return LogHandoffNotifier{}
}

func (LogHandoffNotifier) NotifyHandoff(waID, action string) {
	log.Printf("[BOT] handoff requested by %s (action=%s)", waID, action)
}
