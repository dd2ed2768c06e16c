package kernel

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Source identifies where an edge fires from: either the termination of a
// reactor or a named event. It is a tagged variant; the zero Source is
// neither kind and matches nothing.
//
// Event names are NFC-normalized on construction so composed and decomposed
// spellings of the same name address the same edge set.
type Source struct {
	reactor ID
	event   string
}

// ReactorSource returns a Source that fires when the reactor terminates.
func ReactorSource(id ID) Source {
	return Source{reactor: id}
}

// EventSource returns a Source that fires when the named event is posted or
// stepped into the application.
func EventSource(name string) Source {
	return Source{event: norm.NFC.String(name)}
}

// IsEvent reports whether the source is a named event.
func (s Source) IsEvent() bool { return s.event != "" }

// Reactor returns the reactor id for a reactor source (0 for event sources).
func (s Source) Reactor() ID { return s.reactor }

// Event returns the normalized event name (empty for reactor sources).
func (s Source) Event() string { return s.event }

// String implements fmt.Stringer.
func (s Source) String() string {
	if s.IsEvent() {
		return "event:" + s.event
	}
	return fmt.Sprintf("reactor:%d", s.reactor)
}
