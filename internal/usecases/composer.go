package usecases

import (
	"github.com/perzivalh/botsito-podopie/internal/entities"
	"github.com/perzivalh/botsito-podopie/internal/flow"
)

// Provider limits for interactive prompts.
const (
	maxButtons     = 3  // beyond this a prompt becomes a list
	maxButtonTitle = 20 // button title length cap
	maxRowTitle    = 24 // list row title length cap
)

// Composer renders resolved nodes and procedural steps into outbound
// messages. Pure: it never delivers anything itself.
type Composer struct{}

// RenderNode turns a flow node into its prompt. Transitions become
// options whose id is the target node id; that id round-trips back as
// the Selection the resolver matches.
func (c Composer) RenderNode(n *flow.Node) entities.OutboundMessage {
	if len(n.Transitions) == 0 {
		return entities.OutboundMessage{Kind: entities.OutboundText, Body: n.Text}
	}

	options := make([]entities.Option, 0, len(n.Transitions))
	limit := maxRowTitle
	if len(n.Transitions) <= maxButtons {
		limit = maxButtonTitle
	}
	for _, t := range n.Transitions {
		options = append(options, entities.Option{
			ID:    t.Next,
			Title: truncate(t.Label, limit),
		})
	}

	return c.Prompt(n.Text, options)
}

// Prompt builds a button prompt when the option count fits the provider
// button limit, otherwise a list prompt.
func (c Composer) Prompt(body string, options []entities.Option) entities.OutboundMessage {
	if len(options) <= maxButtons {
		return entities.OutboundMessage{
			Kind:    entities.OutboundButtons,
			Body:    body,
			Options: options,
		}
	}
	return entities.OutboundMessage{
		Kind:        entities.OutboundList,
		Body:        body,
		Header:      "Opciones",
		ButtonLabel: "Ver opciones",
		Options:     options,
	}
}

// Text builds a plain text message.
func (c Composer) Text(body string) entities.OutboundMessage {
	return entities.OutboundMessage{Kind: entities.OutboundText, Body: body}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
