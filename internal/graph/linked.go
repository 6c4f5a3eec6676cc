package graph

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

// WarningFunc receives data-quality warnings raised while building.
// It may be called from more than one goroutine, but never concurrently.
type WarningFunc func(Warning)

// BuildOptions configures Build.
type BuildOptions struct {
	// OnWarning receives every warning. If nil, warnings are logged
	// through Logger at WARN level.
	OnWarning WarningFunc

	// Logger is used by the default warning observer.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// LinkedLog is an object-centric event log together with its index tables.
//
// A LinkedLog is immutable once Build returns and may be shared between
// goroutines without synchronization. Indices handed out by one LinkedLog
// are meaningless for any other.
type LinkedLog struct {
	log        *ocel.Log
	generation string
	builtAt    time.Time
	stats      BuildStats

	objectIndex map[string]ObjectIndex
	eventIndex  map[string]EventIndex

	// Declared type names in declaration order.
	objectTypes []string
	eventTypes  []string

	objectsOfType map[string][]ObjectIndex
	eventsOfType  map[string][]EventIndex

	// objectEvents[o] lists the events that relate to object o.
	objectEvents [][]EventIndex

	// Directed relations as declared in the log. Not symmetric.
	relations map[NodeIndex][]Relation

	// Both directions of every relation, tagged with a reversal flag.
	symmetric map[NodeIndex]map[SymmetricRelation]struct{}

	relationSummary map[string]map[QualifierAndType]struct{}
}

// edge is a relationship whose target resolved to an object.
type edge struct {
	source    NodeIndex
	target    ObjectIndex
	qualifier string
}

// warningSink serializes warning delivery and counts by kind.
type warningSink struct {
	mu     sync.Mutex
	fn     WarningFunc
	counts map[WarningKind]int
}

func newWarningSink(opts BuildOptions) *warningSink {
	fn := opts.OnWarning
	if fn == nil {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		fn = func(w Warning) {
			logger.Warn("malformed log: "+w.String(),
				slog.String("kind", string(w.Kind)),
				slog.String("source_kind", w.SourceKind.String()),
				slog.String("source_id", w.SourceID),
				slog.String("target_id", w.TargetID),
			)
		}
	}
	return &warningSink{fn: fn, counts: make(map[WarningKind]int)}
}

func (s *warningSink) warn(w Warning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[w.Kind]++
	s.fn(w)
}

// Build computes every index table for log.
//
// Build never fails: dangling references, duplicate identifiers and
// undeclared types are reported as warnings and tolerated. The context is
// used for tracing only. A nil log is treated as empty.
func Build(ctx context.Context, log *ocel.Log, opts BuildOptions) *LinkedLog {
	_, span := tracer.Start(ctx, "graph.Build")
	defer span.End()

	start := time.Now()
	if log == nil {
		log = &ocel.Log{}
	}

	sink := newWarningSink(opts)
	l := &LinkedLog{
		log:        log,
		generation: uuid.NewString(),
	}

	l.resolveIdentities(sink)
	edges := l.resolveRelationships(sink)

	// The remaining tables only read the resolved identities and edges.
	var wg sync.WaitGroup
	wg.Go(func() { l.buildTypeCatalogs(sink) })
	wg.Go(func() { l.buildAssociationIndex(edges) })
	wg.Go(func() { l.buildRelationGraph(edges) })
	wg.Go(func() { l.buildRelationSummary(edges) })
	wg.Wait()

	l.builtAt = time.Now()
	elapsed := l.builtAt.Sub(start)
	l.stats = BuildStats{
		Objects:           len(log.Objects),
		Events:            len(log.Events),
		Relations:         len(edges),
		DroppedReferences: sink.counts[WarnDanglingReference],
		DuplicateIDs:      sink.counts[WarnDuplicateID],
		DurationSecs:      elapsed.Seconds(),
	}

	buildTotal.Inc()
	buildDuration.Observe(elapsed.Seconds())
	droppedReferences.Add(float64(l.stats.DroppedReferences))
	span.SetAttributes(
		attribute.String("generation", l.generation),
		attribute.Int("objects", l.stats.Objects),
		attribute.Int("events", l.stats.Events),
		attribute.Int("relations", l.stats.Relations),
		attribute.Int("dropped_references", l.stats.DroppedReferences),
	)

	return l
}

// resolveIdentities assigns dense indices in log order. For duplicate
// identifiers the later occurrence wins.
func (l *LinkedLog) resolveIdentities(sink *warningSink) {
	l.objectIndex = make(map[string]ObjectIndex, len(l.log.Objects))
	for i := range l.log.Objects {
		id := l.log.Objects[i].ID
		if _, dup := l.objectIndex[id]; dup {
			sink.warn(Warning{Kind: WarnDuplicateID, SourceKind: KindObject, SourceID: id})
		}
		l.objectIndex[id] = ObjectIndex(i)
	}

	l.eventIndex = make(map[string]EventIndex, len(l.log.Events))
	for i := range l.log.Events {
		id := l.log.Events[i].ID
		if _, dup := l.eventIndex[id]; dup {
			sink.warn(Warning{Kind: WarnDuplicateID, SourceKind: KindEvent, SourceID: id})
		}
		l.eventIndex[id] = EventIndex(i)
	}
}

// resolveRelationships resolves every declared relationship once, dropping
// and reporting the ones whose target is not a known object.
func (l *LinkedLog) resolveRelationships(sink *warningSink) []edge {
	var edges []edge

	for i := range l.log.Events {
		ev := &l.log.Events[i]
		src := EventNode(EventIndex(i))
		for _, r := range ev.Relationships {
			target, ok := l.objectIndex[r.ObjectID]
			if !ok {
				sink.warn(Warning{Kind: WarnDanglingReference, SourceKind: KindEvent, SourceID: ev.ID, TargetID: r.ObjectID})
				continue
			}
			edges = append(edges, edge{source: src, target: target, qualifier: r.Qualifier})
		}
	}

	for i := range l.log.Objects {
		ob := &l.log.Objects[i]
		src := ObjectNode(ObjectIndex(i))
		for _, r := range ob.Relationships {
			target, ok := l.objectIndex[r.ObjectID]
			if !ok {
				sink.warn(Warning{Kind: WarnDanglingReference, SourceKind: KindObject, SourceID: ob.ID, TargetID: r.ObjectID})
				continue
			}
			edges = append(edges, edge{source: src, target: target, qualifier: r.Qualifier})
		}
	}

	return edges
}

func (l *LinkedLog) buildTypeCatalogs(sink *warningSink) {
	l.objectsOfType = make(map[string][]ObjectIndex, len(l.log.ObjectTypes))
	for _, t := range l.log.ObjectTypes {
		if _, seen := l.objectsOfType[t.Name]; !seen {
			l.objectsOfType[t.Name] = []ObjectIndex{}
			l.objectTypes = append(l.objectTypes, t.Name)
		}
	}
	for i := range l.log.Objects {
		ob := &l.log.Objects[i]
		list, ok := l.objectsOfType[ob.Type]
		if !ok {
			sink.warn(Warning{Kind: WarnUndeclaredType, SourceKind: KindObject, SourceID: ob.ID, TargetID: ob.Type})
			continue
		}
		l.objectsOfType[ob.Type] = append(list, ObjectIndex(i))
	}

	l.eventsOfType = make(map[string][]EventIndex, len(l.log.EventTypes))
	for _, t := range l.log.EventTypes {
		if _, seen := l.eventsOfType[t.Name]; !seen {
			l.eventsOfType[t.Name] = []EventIndex{}
			l.eventTypes = append(l.eventTypes, t.Name)
		}
	}
	for i := range l.log.Events {
		ev := &l.log.Events[i]
		list, ok := l.eventsOfType[ev.Type]
		if !ok {
			sink.warn(Warning{Kind: WarnUndeclaredType, SourceKind: KindEvent, SourceID: ev.ID, TargetID: ev.Type})
			continue
		}
		l.eventsOfType[ev.Type] = append(list, EventIndex(i))
	}
}

func (l *LinkedLog) buildAssociationIndex(edges []edge) {
	l.objectEvents = make([][]EventIndex, len(l.log.Objects))
	for i := range l.objectEvents {
		l.objectEvents[i] = []EventIndex{}
	}
	for _, e := range edges {
		if e.source.IsObject() {
			continue
		}
		l.objectEvents[e.target] = append(l.objectEvents[e.target], e.source.Event())
	}
}

func (l *LinkedLog) buildRelationGraph(edges []edge) {
	l.relations = make(map[NodeIndex][]Relation)
	l.symmetric = make(map[NodeIndex]map[SymmetricRelation]struct{})

	insert := func(owner NodeIndex, rel SymmetricRelation) {
		set, ok := l.symmetric[owner]
		if !ok {
			set = make(map[SymmetricRelation]struct{})
			l.symmetric[owner] = set
		}
		set[rel] = struct{}{}
	}

	for _, e := range edges {
		target := ObjectNode(e.target)
		l.relations[e.source] = append(l.relations[e.source], Relation{Target: e.target, Qualifier: e.qualifier})
		insert(e.source, SymmetricRelation{Node: target, Reversed: false, Qualifier: e.qualifier})
		insert(target, SymmetricRelation{Node: e.source, Reversed: true, Qualifier: e.qualifier})
	}
}

func (l *LinkedLog) buildRelationSummary(edges []edge) {
	l.relationSummary = make(map[string]map[QualifierAndType]struct{}, len(l.log.ObjectTypes))
	for _, t := range l.log.ObjectTypes {
		l.relationSummary[t.Name] = make(map[QualifierAndType]struct{})
	}
	for _, e := range edges {
		if !e.source.IsObject() {
			continue
		}
		sourceType := l.log.Objects[e.source.Index].Type
		set, ok := l.relationSummary[sourceType]
		if !ok {
			set = make(map[QualifierAndType]struct{})
			l.relationSummary[sourceType] = set
		}
		set[QualifierAndType{Qualifier: e.qualifier, ObjectType: l.log.Objects[e.target].Type}] = struct{}{}
	}
}

// Log returns the underlying raw log. Callers must not modify it.
func (l *LinkedLog) Log() *ocel.Log { return l.log }

// Generation is a unique identifier of this build.
func (l *LinkedLog) Generation() string { return l.generation }

// BuiltAt is the time the build completed.
func (l *LinkedLog) BuiltAt() time.Time { return l.builtAt }

// Stats returns the build statistics.
func (l *LinkedLog) Stats() BuildStats { return l.stats }

// Info returns the log summary.
func (l *LinkedLog) Info() ocel.Info { return ocel.Summarize(l.log) }

// ObjectCount returns the number of objects.
func (l *LinkedLog) ObjectCount() int { return len(l.log.Objects) }

// EventCount returns the number of events.
func (l *LinkedLog) EventCount() int { return len(l.log.Events) }

// ObjectIndexOf resolves an object identifier.
func (l *LinkedLog) ObjectIndexOf(id string) (ObjectIndex, bool) {
	o, ok := l.objectIndex[id]
	return o, ok
}

// EventIndexOf resolves an event identifier.
func (l *LinkedLog) EventIndexOf(id string) (EventIndex, bool) {
	e, ok := l.eventIndex[id]
	return e, ok
}

// NodeIndexOf resolves an identifier, trying objects first.
func (l *LinkedLog) NodeIndexOf(id string) (NodeIndex, bool) {
	if o, ok := l.objectIndex[id]; ok {
		return ObjectNode(o), true
	}
	if e, ok := l.eventIndex[id]; ok {
		return EventNode(e), true
	}
	return NodeIndex{}, false
}

// ResolveObjects resolves a list of object identifiers, failing on the
// first unknown one.
func (l *LinkedLog) ResolveObjects(ids []string) ([]ObjectIndex, error) {
	out := make([]ObjectIndex, 0, len(ids))
	for _, id := range ids {
		o, ok := l.objectIndex[id]
		if !ok {
			return nil, fmt.Errorf("%w: object %q", ErrUnknownIdentifier, id)
		}
		out = append(out, o)
	}
	return out, nil
}

func (l *LinkedLog) checkObject(o ObjectIndex) error {
	if o < 0 || int(o) >= len(l.log.Objects) {
		return fmt.Errorf("%w: %s (%d objects)", ErrIndexOutOfRange, o, len(l.log.Objects))
	}
	return nil
}

func (l *LinkedLog) checkEvent(e EventIndex) error {
	if e < 0 || int(e) >= len(l.log.Events) {
		return fmt.Errorf("%w: %s (%d events)", ErrIndexOutOfRange, e, len(l.log.Events))
	}
	return nil
}

func (l *LinkedLog) checkNode(n NodeIndex) error {
	if n.IsObject() {
		return l.checkObject(n.Object())
	}
	return l.checkEvent(n.Event())
}

// Object returns the object at index o.
func (l *LinkedLog) Object(o ObjectIndex) (*ocel.Object, error) {
	if err := l.checkObject(o); err != nil {
		return nil, err
	}
	return &l.log.Objects[o], nil
}

// Event returns the event at index e.
func (l *LinkedLog) Event(e EventIndex) (*ocel.Event, error) {
	if err := l.checkEvent(e); err != nil {
		return nil, err
	}
	return &l.log.Events[e], nil
}

// NodeID returns the identifier of the object or event at n.
func (l *LinkedLog) NodeID(n NodeIndex) (string, error) {
	if err := l.checkNode(n); err != nil {
		return "", err
	}
	if n.IsObject() {
		return l.log.Objects[n.Index].ID, nil
	}
	return l.log.Events[n.Index].ID, nil
}

// NodeType returns the object or event type of n.
func (l *LinkedLog) NodeType(n NodeIndex) (string, error) {
	if err := l.checkNode(n); err != nil {
		return "", err
	}
	if n.IsObject() {
		return l.log.Objects[n.Index].Type, nil
	}
	return l.log.Events[n.Index].Type, nil
}

// ObjectTypes returns the declared object type names in declaration order.
func (l *LinkedLog) ObjectTypes() []string { return slices.Clone(l.objectTypes) }

// EventTypes returns the declared event type names in declaration order.
func (l *LinkedLog) EventTypes() []string { return slices.Clone(l.eventTypes) }

// ObjectsOfType returns the objects of a declared type, in log order.
func (l *LinkedLog) ObjectsOfType(name string) ([]ObjectIndex, error) {
	list, ok := l.objectsOfType[name]
	if !ok {
		return nil, fmt.Errorf("%w: object type %q", ErrUnknownType, name)
	}
	return list, nil
}

// EventsOfType returns the events of a declared type, in log order.
func (l *LinkedLog) EventsOfType(name string) ([]EventIndex, error) {
	list, ok := l.eventsOfType[name]
	if !ok {
		return nil, fmt.Errorf("%w: event type %q", ErrUnknownType, name)
	}
	return list, nil
}

// ObjectEvents returns the events related to object o, in log order. An
// event that relates to o more than once appears once per relationship.
func (l *LinkedLog) ObjectEvents(o ObjectIndex) ([]EventIndex, error) {
	if err := l.checkObject(o); err != nil {
		return nil, err
	}
	return l.objectEvents[o], nil
}

// Relations returns the directed relations declared by n, in log order.
func (l *LinkedLog) Relations(n NodeIndex) ([]Relation, error) {
	if err := l.checkNode(n); err != nil {
		return nil, err
	}
	return l.relations[n], nil
}

// SymmetricRelations returns both directions of every relation touching n.
// The result is sorted by node, direction and qualifier.
func (l *LinkedLog) SymmetricRelations(n NodeIndex) ([]SymmetricRelation, error) {
	if err := l.checkNode(n); err != nil {
		return nil, err
	}
	set := l.symmetric[n]
	out := make([]SymmetricRelation, 0, len(set))
	for rel := range set {
		out = append(out, rel)
	}
	slices.SortFunc(out, compareSymmetric)
	return out, nil
}

// SymmetricDegree returns the number of symmetric relations of n without
// materializing them.
func (l *LinkedLog) SymmetricDegree(n NodeIndex) (int, error) {
	if err := l.checkNode(n); err != nil {
		return 0, err
	}
	return len(l.symmetric[n]), nil
}

func compareSymmetric(a, b SymmetricRelation) int {
	if c := cmp.Compare(a.Node.Kind, b.Node.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Node.Index, b.Node.Index); c != 0 {
		return c
	}
	if a.Reversed != b.Reversed {
		if !a.Reversed {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.Qualifier, b.Qualifier)
}
