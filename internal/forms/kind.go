package forms

import "fmt"

// Kind is the behavioral category of a form step.
type Kind string

const (
	// KindAskAndWait sends a prompt and parks the lead until the contact replies.
	KindAskAndWait Kind = "ask-and-wait"
	// KindSendAndAdvance sends a prompt and moves on without waiting.
	KindSendAndAdvance Kind = "send-and-advance"
	// KindForwardToOperator publishes the answer summary to the operator channel.
	KindForwardToOperator Kind = "forward-to-operator"
	// KindTerminal ends the form.
	KindTerminal Kind = "terminal"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAskAndWait, KindSendAndAdvance, KindForwardToOperator, KindTerminal:
		return true
	default:
		return false
	}
}

// ParseKind converts a raw string into a Kind.
func ParseKind(raw string) (Kind, error) {
	k := Kind(raw)
	if !k.Valid() {
		return "", fmt.Errorf("forms: unknown state kind %q", raw)
	}
	return k, nil
}

func (k Kind) String() string {
	return string(k)
}
