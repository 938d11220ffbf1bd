package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

func TestClassifyText(t *testing.T) {
	ev := Classify(entities.InboundMessage{Type: "text", Text: "hola"})
	assert.Equal(t, entities.EventText, ev.Kind)
	assert.Equal(t, "hola", ev.Body)
}

func TestClassifySelection(t *testing.T) {
	ev := Classify(entities.InboundMessage{
		Type:      "interactive",
		ReplyID:   "DAY_TODAY",
		ReplyText: "Hoy",
	})
	assert.Equal(t, entities.EventSelection, ev.Kind)
	assert.Equal(t, "DAY_TODAY", ev.ID)
	assert.Equal(t, "Hoy", ev.Label)
}

func TestClassifyUnsupported(t *testing.T) {
	cases := []entities.InboundMessage{
		{Type: "image"},
		{Type: "audio"},
		{Type: "sticker"},
		{Type: "reaction"},
		{Type: "interactive"}, // interactive without a reply payload
		{Type: ""},
	}
	for _, msg := range cases {
		ev := Classify(msg)
		assert.Equal(t, entities.EventUnsupported, ev.Kind, "type %q", msg.Type)
	}
}
