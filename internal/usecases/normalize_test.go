package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Mañana", "manana"},
		{"  HoY ", "hoy"},
		{"CANCELAR", "cancelar"},
		{"uña encarnada", "una encarnada"},
		{"Sí, confirmo", "si, confirmo"},
		{"", ""},
		{"   ", ""},
		{"0", "0"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestMatchKeywordFirstRuleWins(t *testing.T) {
	id, ok := matchKeyword(dayKeywords, "hoy o manana")
	assert.True(t, ok)
	assert.Equal(t, DayToday, id, "rules are scanned in declaration order")
}

func TestMatchKeywordDayVocabulary(t *testing.T) {
	cases := map[string]string{
		"hoy":                DayToday,
		"quiero venir hoy":   DayToday,
		"manana":             DayTomorrow,
		"esta semana":        DayWeek,
		"en la semana puedo": DayWeek,
	}
	for in, want := range cases {
		id, ok := matchKeyword(dayKeywords, in)
		assert.True(t, ok, "input %q", in)
		assert.Equal(t, want, id, "input %q", in)
	}

	_, ok := matchKeyword(dayKeywords, "el lunes 14")
	assert.False(t, ok)
}

func TestMatchKeywordMananaIsAmbiguousByStep(t *testing.T) {
	// "manana" means tomorrow on the day step and morning on the time
	// step; the two vocabularies resolve it independently.
	id, ok := matchKeyword(dayKeywords, "manana")
	assert.True(t, ok)
	assert.Equal(t, DayTomorrow, id)

	id, ok = matchKeyword(timeKeywords, "manana")
	assert.True(t, ok)
	assert.Equal(t, TimeMorning, id)
}
