// Package ocel provides the raw object-centric event log model.
//
// It defines the typed objects, events and qualified relationships that make
// up an OCEL 2.0 log, together with decoders for the JSON and XML
// serializations. The model is plain data: once decoded, a Log is treated as
// immutable by the rest of the system.
package ocel

import "time"

// Type is a declared object or event type.
type Type struct {
	// Name is the type name (e.g., "order", "place order").
	Name string `json:"name"`

	// Attributes lists the attribute declarations of the type.
	Attributes []TypeAttribute `json:"attributes,omitempty"`
}

// TypeAttribute declares an attribute name and its value type.
type TypeAttribute struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relationship is a qualified reference from an object or event to an object.
type Relationship struct {
	// ObjectID is the identifier of the target object.
	ObjectID string `json:"objectId"`

	// Qualifier describes the role of the relationship.
	Qualifier string `json:"qualifier"`
}

// ObjectAttribute is a (possibly time-varying) object attribute value.
type ObjectAttribute struct {
	Name  string    `json:"name"`
	Value any       `json:"value"`
	Time  time.Time `json:"time"`
}

// EventAttribute is an event attribute value.
type EventAttribute struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Object is a typed object of the log.
type Object struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Attributes    []ObjectAttribute `json:"attributes,omitempty"`
	Relationships []Relationship    `json:"relationships,omitempty"`
}

// Event is a typed, timestamped event of the log.
type Event struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Time          time.Time        `json:"time"`
	Attributes    []EventAttribute `json:"attributes,omitempty"`
	Relationships []Relationship   `json:"relationships,omitempty"`
}

// Log is a materialized object-centric event log.
type Log struct {
	ObjectTypes []Type   `json:"objectTypes"`
	EventTypes  []Type   `json:"eventTypes"`
	Objects     []Object `json:"objects"`
	Events      []Event  `json:"events"`
}

// Info summarizes a log for clients that need counts and identifiers
// without the full instance data.
type Info struct {
	NumObjects  int      `json:"num_objects"`
	NumEvents   int      `json:"num_events"`
	ObjectTypes []Type   `json:"object_types"`
	EventTypes  []Type   `json:"event_types"`
	ObjectIDs   []string `json:"object_ids"`
	EventIDs    []string `json:"event_ids"`
}

// Summarize computes the Info of a log.
func Summarize(log *Log) Info {
	info := Info{
		NumObjects:  len(log.Objects),
		NumEvents:   len(log.Events),
		ObjectTypes: append([]Type(nil), log.ObjectTypes...),
		EventTypes:  append([]Type(nil), log.EventTypes...),
		ObjectIDs:   make([]string, len(log.Objects)),
		EventIDs:    make([]string, len(log.Events)),
	}
	for i := range log.Objects {
		info.ObjectIDs[i] = log.Objects[i].ID
	}
	for i := range log.Events {
		info.EventIDs[i] = log.Events[i].ID
	}
	return info
}
