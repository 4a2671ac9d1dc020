package conversation

import "github.com/sandevgo/reliefdesk/internal/service/state"

// InputKind classifies what an identity sent to its session.
type InputKind int

const (
	InputStart InputKind = iota
	InputCancel
	InputText
	InputArtifact
	InputTimeout
)

func (k InputKind) String() string {
	switch k {
	case InputStart:
		return "start"
	case InputCancel:
		return "cancel"
	case InputText:
		return "text"
	case InputArtifact:
		return "artifact"
	case InputTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

var inputKinds = []InputKind{InputStart, InputCancel, InputText, InputArtifact, InputTimeout}

// Outcome is the structural result of an input before validation.
type Outcome int

const (
	Advance Outcome = iota
	Reprompt
	Cancel
)

type edge struct {
	next    state.Phase
	outcome Outcome
}

// transition is total over every (phase, input) pair. An Advance edge can
// still turn into a Reprompt or a Cancel once the input is validated.
func transition(phase state.Phase, in InputKind) edge {
	if !phase.Active() {
		if in == InputStart {
			return edge{state.ConfirmingNotice, Advance}
		}
		return edge{state.Idle, Reprompt}
	}

	switch in {
	case InputCancel, InputTimeout:
		return edge{state.Cancelled, Cancel}
	case InputStart:
		return edge{phase, Reprompt}
	}

	switch phase {
	case state.ConfirmingNotice:
		if in == InputText {
			return edge{state.SelectingCategory, Advance}
		}
	case state.SelectingCategory:
		if in == InputText {
			return edge{state.AwaitingContent, Advance}
		}
	case state.AwaitingContent:
		return edge{state.AwaitingCode, Advance}
	case state.AwaitingCode:
		if in == InputText {
			return edge{state.Committed, Advance}
		}
	}
	return edge{phase, Reprompt}
}
