package analysis

import (
	"encoding/json"
	"fmt"
)

// EventKind discriminates the two progress messages a client can receive.
type EventKind string

const (
	EventStatusUpdate   EventKind = "status_update"
	EventAnalysisResult EventKind = "analysis_result"
)

// Event is the wire envelope published on an analysis channel:
//
//	{"event": "status_update", "data": "TRANSCRIBING"}
//	{"event": "analysis_result", "data": { ...Analysis... }}
type Event struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// StatusEvent builds a status_update event.
func StatusEvent(s Status) Event {
	data, _ := json.Marshal(s) // a string never fails to marshal
	return Event{Event: EventStatusUpdate, Data: data}
}

// ResultEvent builds an analysis_result event carrying the full analysis.
func ResultEvent(a *Analysis) (Event, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return Event{}, fmt.Errorf("analysis: encode result: %w", err)
	}
	return Event{Event: EventAnalysisResult, Data: data}, nil
}

// Encode returns the JSON form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire message produced by [Event.Encode].
func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("analysis: decode event: %w", err)
	}
	switch e.Event {
	case EventStatusUpdate, EventAnalysisResult:
	default:
		return Event{}, fmt.Errorf("analysis: decode event: unknown kind %q", e.Event)
	}
	return e, nil
}

// Status returns the status carried by a status_update event, or the status
// of the embedded analysis for an analysis_result event.
func (e Event) Status() (Status, error) {
	switch e.Event {
	case EventStatusUpdate:
		var s Status
		if err := json.Unmarshal(e.Data, &s); err != nil {
			return "", fmt.Errorf("analysis: status payload: %w", err)
		}
		if !s.IsValid() {
			return "", fmt.Errorf("analysis: unknown status %q", s)
		}
		return s, nil
	case EventAnalysisResult:
		a, err := e.Analysis()
		if err != nil {
			return "", err
		}
		return a.Status, nil
	default:
		return "", fmt.Errorf("analysis: unknown event kind %q", e.Event)
	}
}

// Analysis returns the analysis carried by an analysis_result event.
func (e Event) Analysis() (*Analysis, error) {
	if e.Event != EventAnalysisResult {
		return nil, fmt.Errorf("analysis: event %q carries no analysis", e.Event)
	}
	var a Analysis
	if err := json.Unmarshal(e.Data, &a); err != nil {
		return nil, fmt.Errorf("analysis: result payload: %w", err)
	}
	return &a, nil
}

// IsTerminal reports whether e ends the event stream of an analysis, i.e. it
// is a status update to COMPLETED or FAILED.
func (e Event) IsTerminal() bool {
	if e.Event != EventStatusUpdate {
		return false
	}
	s, err := e.Status()
	return err == nil && s.IsTerminal()
}
