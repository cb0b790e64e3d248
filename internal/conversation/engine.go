package conversation

import (
	"fmt"
	"maps"

	"github.com/wolfman30/avito-asker/internal/events"
	"github.com/wolfman30/avito-asker/internal/forms"
	"github.com/wolfman30/avito-asker/internal/leads"
)

// DefaultMaxChainLength bounds how many states a single inbound message may walk through.
const DefaultMaxChainLength = 16

// Target selects the channel an outbound message is published to.
type Target string

const (
	TargetContact  Target = "contact"
	TargetOperator Target = "operator"
)

// Outbound is one message the router must publish, in order.
type Outbound struct {
	Target  Target
	Message events.InternalMessage
}

// Decision is everything the router needs to apply one inbound message.
type Decision struct {
	// Outbound messages in publish order.
	Outbound []Outbound
	// Lead is the resulting lead. It is a copy; the input lead is never mutated.
	Lead *leads.Lead
	// Passthrough is set when the lead had completed the form and the text was relayed.
	Passthrough bool
	// Changed reports whether Lead differs from the input and must be committed.
	Changed bool
	// Path lists the states entered, in order.
	Path []string
}

// Engine maps a lead and an inbound message to a Decision. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	def      *forms.Definition
	maxChain int
}

// Option customizes the engine.
type Option func(*Engine)

// WithMaxChainLength overrides DefaultMaxChainLength. Non-positive values are ignored.
func WithMaxChainLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxChain = n
		}
	}
}

// NewEngine builds an engine around a loaded form.
func NewEngine(def *forms.Definition, opts ...Option) *Engine {
	if def == nil {
		panic("conversation: form definition cannot be nil")
	}
	e := &Engine{def: def, maxChain: DefaultMaxChainLength}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definition returns the form the engine runs.
func (e *Engine) Definition() *forms.Definition {
	return e.def
}

// NewLead builds the unsaved lead for a contact seen for the first time.
func (e *Engine) NewLead(evt events.InboundEvent) *leads.Lead {
	return leads.New(evt.SenderID, evt.OwnerID, evt.ThreadID, e.def.Initial())
}

// Decide computes the outbound messages and the next lead for evt. On error
// the decision is empty and nothing may be applied.
func (e *Engine) Decide(lead *leads.Lead, evt events.InboundEvent) (Decision, error) {
	if lead == nil {
		return Decision{}, fmt.Errorf("conversation: lead is required")
	}
	cur := lead.Clone()

	if !cur.IsNew() && e.def.IsTerminal(cur.CurrentState) {
		msg := events.NewInternalMessage(events.KindPassthrough, cur.ContactID, routeOwner(cur, evt), routeThread(cur, evt), evt.Text)
		return Decision{
			Outbound:    []Outbound{{Target: TargetOperator, Message: msg}},
			Lead:        cur,
			Passthrough: true,
		}, nil
	}

	if evt.OwnerID != "" {
		cur.OwnerID = evt.OwnerID
	}
	if evt.ThreadID != "" {
		cur.ThreadID = evt.ThreadID
	}

	entering, err := e.resume(cur, evt)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Lead: cur}
	if err := e.enter(cur, entering, &d); err != nil {
		return Decision{}, err
	}
	d.Changed = cur.IsNew() ||
		cur.CurrentState != lead.CurrentState ||
		cur.OwnerID != lead.OwnerID ||
		cur.ThreadID != lead.ThreadID ||
		!maps.Equal(cur.Answers, lead.Answers)
	return d, nil
}

// resume applies the inbound message to the parked lead and returns the state to enter next.
func (e *Engine) resume(cur *leads.Lead, evt events.InboundEvent) (string, error) {
	if cur.IsNew() {
		return e.def.Initial(), nil
	}

	st, ok := e.def.State(cur.CurrentState)
	if !ok {
		return "", fmt.Errorf("%w: lead %s is parked at %q", ErrMissingState, cur.ContactID, cur.CurrentState)
	}
	switch st.Kind {
	case forms.KindAskAndWait:
		if st.AnswerField != "" {
			cur.SetAnswer(st.AnswerField, evt.Text)
		}
		return st.NextState, nil
	case forms.KindSendAndAdvance, forms.KindForwardToOperator:
		// a previous step published but never committed
		return cur.CurrentState, nil
	case forms.KindTerminal:
		return cur.CurrentState, nil
	default:
		return "", fmt.Errorf("%w: state %q has kind %q", ErrUnknownKind, cur.CurrentState, st.Kind)
	}
}

// enter walks states starting at id until one waits for input or ends the form.
func (e *Engine) enter(cur *leads.Lead, id string, d *Decision) error {
	summarized := false
	for hops := 0; ; hops++ {
		if hops >= e.maxChain {
			return fmt.Errorf("%w: stopped at %q after %d states", ErrChainTooLong, id, hops)
		}
		st, ok := e.def.State(id)
		if !ok {
			return fmt.Errorf("%w: %q (from %q)", ErrMissingState, id, cur.CurrentState)
		}
		cur.CurrentState = id
		d.Path = append(d.Path, id)

		switch st.Kind {
		case forms.KindSendAndAdvance:
			e.prompt(cur, st, d)
			if st.NextState == "" {
				return nil
			}
			id = st.NextState
		case forms.KindAskAndWait:
			e.prompt(cur, st, d)
			return nil
		case forms.KindForwardToOperator:
			e.prompt(cur, st, d)
			e.summary(cur, d)
			summarized = true
			next := e.def.Successor(id)
			if next == "" {
				return nil
			}
			id = next
		case forms.KindTerminal:
			e.prompt(cur, st, d)
			if !summarized && len(cur.Answers) > 0 {
				e.summary(cur, d)
			}
			return nil
		default:
			return fmt.Errorf("%w: state %q has kind %q", ErrUnknownKind, id, st.Kind)
		}
	}
}

func (e *Engine) prompt(cur *leads.Lead, st forms.State, d *Decision) {
	if st.Prompt == "" {
		return
	}
	d.Outbound = append(d.Outbound, Outbound{
		Target:  TargetContact,
		Message: events.NewInternalMessage(events.KindPrompt, cur.ContactID, cur.OwnerID, cur.ThreadID, st.Prompt),
	})
}

func (e *Engine) summary(cur *leads.Lead, d *Decision) {
	d.Outbound = append(d.Outbound, Outbound{
		Target:  TargetOperator,
		Message: events.NewInternalMessage(events.KindSummary, cur.ContactID, cur.OwnerID, cur.ThreadID, Summarize(e.def, cur.Answers)),
	})
}

func routeOwner(l *leads.Lead, evt events.InboundEvent) string {
	if evt.OwnerID != "" {
		return evt.OwnerID
	}
	return l.OwnerID
}

func routeThread(l *leads.Lead, evt events.InboundEvent) string {
	if evt.ThreadID != "" {
		return evt.ThreadID
	}
	return l.ThreadID
}
