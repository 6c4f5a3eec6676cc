// Package graph provides the index-linked view of an object-centric event log.
//
// It resolves object and event identifiers to dense integer indices and
// derives the lookup tables used for relationship traversal: per-type
// catalogs, the object→events association index, the directed relation table
// and its symmetric closure, and a schema-level summary of object-to-object
// relations. All tables reference entities by index, never by pointer.
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectIndex is the dense position of an object in the loaded log.
type ObjectIndex int

// String renders the index as "Ob:<n>".
func (o ObjectIndex) String() string { return "Ob:" + strconv.Itoa(int(o)) }

// EventIndex is the dense position of an event in the loaded log.
type EventIndex int

// String renders the index as "Ev:<n>".
func (e EventIndex) String() string { return "Ev:" + strconv.Itoa(int(e)) }

// NodeKind distinguishes objects from events in a NodeIndex.
type NodeKind uint8

const (
	KindObject NodeKind = iota
	KindEvent
)

// String returns the lowercase kind name.
func (k NodeKind) String() string {
	if k == KindEvent {
		return "event"
	}
	return "object"
}

// NodeIndex is either an ObjectIndex or an EventIndex.
type NodeIndex struct {
	// Kind selects which index space Index refers to.
	Kind NodeKind

	// Index is the dense position within that space.
	Index int
}

// ObjectNode wraps an object index.
func ObjectNode(o ObjectIndex) NodeIndex { return NodeIndex{Kind: KindObject, Index: int(o)} }

// EventNode wraps an event index.
func EventNode(e EventIndex) NodeIndex { return NodeIndex{Kind: KindEvent, Index: int(e)} }

// IsObject reports whether the node refers to an object.
func (n NodeIndex) IsObject() bool { return n.Kind == KindObject }

// Object returns the object index. Only meaningful if IsObject is true.
func (n NodeIndex) Object() ObjectIndex { return ObjectIndex(n.Index) }

// Event returns the event index. Only meaningful if IsObject is false.
func (n NodeIndex) Event() EventIndex { return EventIndex(n.Index) }

func (n NodeIndex) String() string {
	if n.IsObject() {
		return n.Object().String()
	}
	return n.Event().String()
}

// ParseNodeIndex parses the "Ob:<n>" / "Ev:<n>" form produced by String.
func ParseNodeIndex(s string) (NodeIndex, error) {
	prefix, num, ok := strings.Cut(s, ":")
	if !ok {
		return NodeIndex{}, fmt.Errorf("invalid node index %q", s)
	}
	i, err := strconv.Atoi(num)
	if err != nil || i < 0 {
		return NodeIndex{}, fmt.Errorf("invalid node index %q", s)
	}
	switch prefix {
	case "Ob":
		return ObjectNode(ObjectIndex(i)), nil
	case "Ev":
		return EventNode(EventIndex(i)), nil
	default:
		return NodeIndex{}, fmt.Errorf("invalid node index %q", s)
	}
}

// Relation is a directed, qualified edge to an object.
type Relation struct {
	Target    ObjectIndex
	Qualifier string
}

// SymmetricRelation is one entry of the symmetric relation table.
type SymmetricRelation struct {
	// Node is the other endpoint of the edge.
	Node NodeIndex

	// Reversed is true if the declared edge points from Node to the owner
	// of this entry rather than the other way round.
	Reversed bool

	// Qualifier is the qualifier of the declared edge.
	Qualifier string
}

// QualifierAndType is one (qualifier, target object type) pair of the
// per-object-type relation summary.
type QualifierAndType struct {
	Qualifier  string `json:"qualifier"`
	ObjectType string `json:"object_type"`
}

// WarningKind classifies data-quality warnings raised while building.
type WarningKind string

const (
	// WarnDanglingReference marks a relationship whose target identifier
	// does not belong to any object.
	WarnDanglingReference WarningKind = "dangling_reference"

	// WarnDuplicateID marks an identifier that occurs more than once; the
	// later occurrence wins.
	WarnDuplicateID WarningKind = "duplicate_id"

	// WarnUndeclaredType marks an entity whose type is not declared in the
	// log's type metadata.
	WarnUndeclaredType WarningKind = "undeclared_type"
)

// Warning is a tolerated data-quality problem found while building.
type Warning struct {
	Kind WarningKind

	// SourceKind is the kind of the entity that raised the warning.
	SourceKind NodeKind

	// SourceID is the identifier of the offending object or event.
	SourceID string

	// TargetID is the unresolved target identifier (dangling references) or
	// the undeclared type name (undeclared types).
	TargetID string
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnDanglingReference:
		return fmt.Sprintf("%s %s relates to object ID %s, which does not belong to any object", w.SourceKind, w.SourceID, w.TargetID)
	case WarnDuplicateID:
		return fmt.Sprintf("%s ID %s occurs more than once; the later occurrence wins", w.SourceKind, w.SourceID)
	case WarnUndeclaredType:
		return fmt.Sprintf("%s %s has undeclared type %s", w.SourceKind, w.SourceID, w.TargetID)
	default:
		return fmt.Sprintf("%s: %s %s -> %s", w.Kind, w.SourceKind, w.SourceID, w.TargetID)
	}
}

// BuildStats summarizes a build.
type BuildStats struct {
	Objects           int     `json:"objects"`
	Events            int     `json:"events"`
	Relations         int     `json:"relations"`
	DroppedReferences int     `json:"dropped_references"`
	DuplicateIDs      int     `json:"duplicate_ids"`
	DurationSecs      float64 `json:"duration_secs"`
}
