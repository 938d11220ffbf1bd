// Package flow holds the immutable conversation-graph model. A Flow is
// loaded from a JSON document, validated once, and never mutated after;
// reloading swaps the whole graph through the Registry.
package flow

import (
	"encoding/json"
	"fmt"
)

type NodeKind string

const (
	KindContent  NodeKind = "content"
	KindAction   NodeKind = "action"
	KindTerminal NodeKind = "terminal"
)

// Transition is one labeled outgoing edge. Declaration order matters:
// matching is first-match-wins, so flow authors resolve ambiguity by
// ordering alone.
type Transition struct {
	Label string `json:"label"`
	Next  string `json:"next"`
}

type Node struct {
	ID          string       `json:"id"`
	Kind        NodeKind     `json:"kind"`
	Text        string       `json:"text,omitempty"`
	Action      string       `json:"action,omitempty"`
	Next        string       `json:"next,omitempty"` // unconditional follow-on for content nodes
	Transitions []Transition `json:"buttons,omitempty"`
}

// Terminal reports whether the node ends the conversation. Action nodes
// are terminal from the engine's perspective; they differ from plain
// terminal nodes only in the side effect they signal.
func (n *Node) Terminal() bool {
	return n.Kind == KindTerminal || n.Kind == KindAction
}

type Flow struct {
	ID          string
	Name        string
	Description string
	StartNodeID string

	nodes map[string]*Node
	order []string
}

type document struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	StartNodeID string  `json:"start_node_id"`
	Nodes       []*Node `json:"nodes"`
}

// Load parses and validates a flow document. A flow that fails any
// check here must never become active: every id unique, the start node
// present, every transition target resolvable, and no outgoing edges on
// terminal or action nodes.
func Load(data []byte) (*Flow, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("flow document is not valid JSON: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("flow document has no id")
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("flow %s has no nodes", doc.ID)
	}

	f := &Flow{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		StartNodeID: doc.StartNodeID,
		nodes:       make(map[string]*Node, len(doc.Nodes)),
	}

	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("flow %s has a node without id", f.ID)
		}
		switch n.Kind {
		case KindContent, KindAction, KindTerminal:
		default:
			return nil, fmt.Errorf("flow %s node %s: unknown kind %q", f.ID, n.ID, n.Kind)
		}
		if _, dup := f.nodes[n.ID]; dup {
			return nil, fmt.Errorf("flow %s: duplicate node id %s", f.ID, n.ID)
		}
		if n.Terminal() && (len(n.Transitions) > 0 || n.Next != "") {
			return nil, fmt.Errorf("flow %s node %s: %s nodes cannot have outgoing transitions", f.ID, n.ID, n.Kind)
		}
		if n.Kind == KindAction && n.Action == "" {
			return nil, fmt.Errorf("flow %s node %s: action node without action tag", f.ID, n.ID)
		}
		f.nodes[n.ID] = n
		f.order = append(f.order, n.ID)
	}

	if f.StartNodeID == "" {
		return nil, fmt.Errorf("flow %s has no start_node_id", f.ID)
	}
	if _, ok := f.nodes[f.StartNodeID]; !ok {
		return nil, fmt.Errorf("flow %s: start_node_id %s does not exist", f.ID, f.StartNodeID)
	}

	for _, id := range f.order {
		n := f.nodes[id]
		if n.Next != "" {
			if _, ok := f.nodes[n.Next]; !ok {
				return nil, fmt.Errorf("flow %s node %s: next %s does not exist", f.ID, n.ID, n.Next)
			}
		}
		for _, t := range n.Transitions {
			if t.Label == "" {
				return nil, fmt.Errorf("flow %s node %s: transition to %s has no label", f.ID, n.ID, t.Next)
			}
			if _, ok := f.nodes[t.Next]; !ok {
				return nil, fmt.Errorf("flow %s node %s: transition %q targets missing node %s", f.ID, n.ID, t.Label, t.Next)
			}
		}
	}

	return f, nil
}

// Node looks up a node by id.
func (f *Flow) Node(id string) (*Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Start returns the designated start node.
func (f *Flow) Start() *Node {
	return f.nodes[f.StartNodeID]
}

// Len returns the node count.
func (f *Flow) Len() int {
	return len(f.order)
}
