package session

import "github.com/taiwalabs/taiwa/pkg/viseme"

// Event is one message on a session's outbound event stream. Each concrete
// type marshals directly to its wire JSON, with the "type" field as the
// discriminator. The set is closed; transports serialize events as-is and
// never construct them.
type Event interface {
	isEvent()
}

// StateEvent announces a session state transition. Reason is present only
// when State is ERROR.
type StateEvent struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

func (StateEvent) isEvent() {}

// NewStateEvent returns the wire event for a transition into s.
func NewStateEvent(s State) StateEvent {
	return StateEvent{Type: "state", State: s.String()}
}

// NewErrorEvent returns the ERROR state event carrying a client-facing
// reason.
func NewErrorEvent(reason string) StateEvent {
	return StateEvent{Type: "state", State: StateError.String(), Reason: reason}
}

// PartialTextEvent carries an interim transcript of the utterance still
// being buffered. Later partials supersede earlier ones.
type PartialTextEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (PartialTextEvent) isEvent() {}

// NewPartialTextEvent returns the wire event for an interim transcript.
func NewPartialTextEvent(text string) PartialTextEvent {
	return PartialTextEvent{Type: "partial_text", Text: text}
}

// ResultEvent carries one completed exchange: what the learner said and
// what the coach answered. Both fields are always present on the wire.
type ResultEvent struct {
	Type      string `json:"type"`
	UserText  string `json:"user_text"`
	CoachText string `json:"coach_text"`
}

func (ResultEvent) isEvent() {}

// NewResultEvent returns the wire event for a completed exchange.
func NewResultEvent(userText, coachText string) ResultEvent {
	return ResultEvent{Type: "result", UserText: userText, CoachText: coachText}
}

// VisemesEvent carries the mouth-shape timeline for the reply about to
// play. Data is never null on the wire; a reply without phoneme timing
// produces an empty array.
type VisemesEvent struct {
	Type string         `json:"type"`
	Data []viseme.Event `json:"data"`
}

func (VisemesEvent) isEvent() {}

// NewVisemesEvent returns the wire event for a mouth-shape timeline.
func NewVisemesEvent(events []viseme.Event) VisemesEvent {
	if events == nil {
		events = []viseme.Event{}
	}
	return VisemesEvent{Type: "visemes", Data: events}
}
