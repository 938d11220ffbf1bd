package entities

import "time"

// StateNew is the state of a session that has not started any flow yet.
// The resolver treats it as "sitting at the active flow's start node".
const StateNew = "NEW"

// Field is one captured value. Fields keep insertion order so captured
// records come out in the order the user answered.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session is per-end-user conversational progress. State is either a
// flow node id or a named procedural step (WAIT_NAME, WAIT_DAY, ...).
// Sessions are owned by the SessionStore; nothing else keeps a
// reference across turns.
type Session struct {
	WaID      string    `json:"wa_id"`
	State     string    `json:"state"`
	Fields    []Field   `json:"fields"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetField replaces the named field or appends it, preserving order.
func (s *Session) SetField(name, value string) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			s.Fields[i].Value = value
			return
		}
	}
	s.Fields = append(s.Fields, Field{Name: name, Value: value})
}

// Field returns the named field value, or "" if not collected yet.
func (s *Session) Field(name string) string {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Reset clears collected fields and returns the session to the start
// state. The record itself stays in the store.
func (s *Session) Reset() {
	s.State = StateNew
	s.Fields = nil
	s.UpdatedAt = time.Now()
}
