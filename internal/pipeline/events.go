package pipeline

import (
	"context"

	"github.com/Aman-CERP/pagegenie/internal/store"
)

// Event names, in the order a successful run emits them.
const (
	EventStarted   = "started"
	EventPhase     = "phase"
	EventRetrieved = "retrieved"
	EventDone      = "done"
	EventError     = "error"
)

// Event is one progress notification. Data is one of the payload types
// below and marshals to the event's JSON body.
type Event struct {
	Name string
	Data any
}

// StartedPayload is the empty body of a started event.
type StartedPayload struct{}

// PhasePayload names the stage being entered.
type PhasePayload struct {
	Name string `json:"name"`
}

// RetrieveTimings is the timing block of a retrieved event.
type RetrieveTimings struct {
	RetrieveMS float64 `json:"retrieve_ms"`
}

// RetrievedPayload summarizes retrieval.
type RetrievedPayload struct {
	NumChunks int             `json:"num_chunks"`
	Timings   RetrieveTimings `json:"timings"`
}

// ErrorPayload is the body of the terminal error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// DonePayload is the body of the terminal done event.
type DonePayload struct {
	Answer          string             `json:"answer"`
	Saved           bool               `json:"saved"`
	RetrievalMethod string             `json:"retrieval_method"`
	Timings         store.StageTimings `json:"timings"`
	Warning         string             `json:"warning,omitempty"`
	// Version is the label the previous content was archived under.
	Version string `json:"version,omitempty"`
	RunID   string `json:"run_id"`
}

// Sink receives events. It is called from the goroutine running the
// pipeline, never concurrently.
type Sink func(Event)

// emitter drops events once the request context is cancelled.
type emitter struct {
	ctx  context.Context
	sink Sink
}

func (e emitter) emit(name string, data any) {
	if e.sink == nil || e.ctx.Err() != nil {
		return
	}
	e.sink(Event{Name: name, Data: data})
}

func (e emitter) phase(s State) {
	e.emit(EventPhase, PhasePayload{Name: string(s)})
}
