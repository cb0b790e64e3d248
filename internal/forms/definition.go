package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// State is one conversation step.
type State struct {
	Kind        Kind   `json:"kind" yaml:"kind"`
	Prompt      string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	AnswerField string `json:"answer_field,omitempty" yaml:"answer_field,omitempty"`
	NextState   string `json:"next_state,omitempty" yaml:"next_state,omitempty"`
}

// Document is the serialized form as stored in Redis, Postgres or on disk.
type Document struct {
	Name             string           `json:"name" yaml:"name"`
	InitialState     string           `json:"initial_state" yaml:"initial_state"`
	PostSummaryState string           `json:"post_summary_state,omitempty" yaml:"post_summary_state,omitempty"`
	States           map[string]State `json:"states" yaml:"states"`
}

// Definition is an indexed, read-only form. It is safe for concurrent use
// because nothing mutates it after construction.
type Definition struct {
	name        string
	initial     string
	postSummary string
	states      map[string]State
	fieldOrder  []string
}

// Build indexes doc without validating it.
func Build(doc Document) *Definition {
	states := make(map[string]State, len(doc.States))
	for id, st := range doc.States {
		states[id] = st
	}
	d := &Definition{
		name:        doc.Name,
		initial:     doc.InitialState,
		postSummary: doc.PostSummaryState,
		states:      states,
	}
	d.fieldOrder = d.computeFieldOrder()
	return d
}

// Parse indexes doc and rejects it unless every invariant holds.
func Parse(doc Document) (*Definition, error) {
	d := Build(doc)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DecodeJSON parses and validates a JSON form document.
func DecodeJSON(raw []byte) (*Definition, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidDefinition, err)
	}
	return Parse(doc)
}

// DecodeYAML parses and validates a YAML form document.
func DecodeYAML(raw []byte) (*Definition, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidDefinition, err)
	}
	return Parse(doc)
}

// Validate checks the structural invariants of the form.
func (d *Definition) Validate() error {
	var problems []error
	if len(d.states) == 0 {
		problems = append(problems, errors.New("no states defined"))
	}
	if strings.TrimSpace(d.initial) == "" {
		problems = append(problems, errors.New("initial_state is required"))
	} else if _, ok := d.states[d.initial]; !ok {
		problems = append(problems, fmt.Errorf("initial_state %q is not defined", d.initial))
	}
	if d.postSummary != "" {
		if _, ok := d.states[d.postSummary]; !ok {
			problems = append(problems, fmt.Errorf("post_summary_state %q is not defined", d.postSummary))
		}
	}

	for _, id := range d.StateIDs() {
		st := d.states[id]
		if !st.Kind.Valid() {
			problems = append(problems, fmt.Errorf("state %q: unknown kind %q", id, st.Kind))
			continue
		}
		if st.Kind == KindTerminal {
			continue
		}
		if st.NextState == "" {
			if st.Kind == KindAskAndWait || st.Kind == KindSendAndAdvance {
				problems = append(problems, fmt.Errorf("state %q: %s requires next_state", id, st.Kind))
			}
			continue
		}
		if _, ok := d.states[st.NextState]; !ok {
			problems = append(problems, fmt.Errorf("state %q: next_state %q is not defined", id, st.NextState))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(problems...))
}

// Name returns the form name.
func (d *Definition) Name() string { return d.name }

// Initial returns the entry state identifier.
func (d *Definition) Initial() string { return d.initial }

// PostSummary returns the state leads move to after a summary without an explicit next_state.
func (d *Definition) PostSummary() string { return d.postSummary }

// Len returns the number of states.
func (d *Definition) Len() int { return len(d.states) }

// State looks up a state by identifier.
func (d *Definition) State(id string) (State, bool) {
	st, ok := d.states[id]
	return st, ok
}

// Successor returns the identifier that follows id, or "" when id ends the form.
func (d *Definition) Successor(id string) string {
	st, ok := d.states[id]
	if !ok || st.Kind == KindTerminal {
		return ""
	}
	if st.NextState != "" {
		return st.NextState
	}
	if st.Kind == KindForwardToOperator && d.postSummary != id {
		return d.postSummary
	}
	return ""
}

// IsTerminal reports whether a lead at id has completed the form.
func (d *Definition) IsTerminal(id string) bool {
	if _, ok := d.states[id]; !ok {
		return false
	}
	return d.Successor(id) == ""
}

// FieldOrder lists answer fields in the order a lead meets them, followed by
// fields of unreachable states sorted by name.
func (d *Definition) FieldOrder() []string {
	out := make([]string, len(d.fieldOrder))
	copy(out, d.fieldOrder)
	return out
}

// StateIDs returns all state identifiers sorted.
func (d *Definition) StateIDs() []string {
	ids := make([]string, 0, len(d.states))
	for id := range d.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Document returns a serializable copy of the definition.
func (d *Definition) Document() Document {
	states := make(map[string]State, len(d.states))
	for id, st := range d.states {
		states[id] = st
	}
	return Document{
		Name:             d.name,
		InitialState:     d.initial,
		PostSummaryState: d.postSummary,
		States:           states,
	}
}

func (d *Definition) computeFieldOrder() []string {
	seenField := make(map[string]bool)
	var order []string
	add := func(field string) {
		if field == "" || seenField[field] {
			return
		}
		seenField[field] = true
		order = append(order, field)
	}

	visited := make(map[string]bool)
	for id := d.initial; id != "" && !visited[id]; id = d.Successor(id) {
		visited[id] = true
		st, ok := d.states[id]
		if !ok {
			break
		}
		add(st.AnswerField)
	}

	var rest []string
	for id, st := range d.states {
		if !visited[id] && st.AnswerField != "" && !seenField[st.AnswerField] {
			rest = append(rest, st.AnswerField)
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		add(field)
	}
	return order
}
