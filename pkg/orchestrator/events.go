package orchestrator

// EventType tags progress events emitted in streaming mode.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventFinal          EventType = "final"
	EventError          EventType = "error"
)

// Event is one element of the streaming sequence. Events arrive in
// node-completion order; the sequence is finite and ends with exactly one
// final or one error event.
type Event struct {
	Type     EventType      `json:"type"`
	Stage    Stage          `json:"stage,omitempty"`
	State    *State         `json:"state,omitempty"`
	Delta    map[string]any `json:"delta,omitempty"`
	Response *Response      `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// emitter delivers events to a consumer; the unary path uses a no-op.
type emitter func(Event)

func (e emitter) stageStarted(stage Stage, state *State) {
	if e == nil {
		return
	}
	e(Event{Type: EventStageStarted, Stage: stage, State: state.clone()})
}

func (e emitter) stageCompleted(stage Stage, delta map[string]any) {
	if e == nil {
		return
	}
	e(Event{Type: EventStageCompleted, Stage: stage, Delta: delta})
}
