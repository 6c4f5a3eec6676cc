package graph

import (
	"cmp"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// EventsOfTypesAssociatedWithObjects returns the events whose type is in
// types and that relate to every object in objects.
//
// With no objects the result is every event of the requested types. Type
// names the log does not declare match nothing. The result is a set; its
// order carries no meaning.
func (l *LinkedLog) EventsOfTypesAssociatedWithObjects(types []string, objects []ObjectIndex) ([]EventIndex, error) {
	start := time.Now()
	defer func() {
		queryDuration.WithLabelValues("events_for_objects").Observe(time.Since(start).Seconds())
	}()

	for _, o := range objects {
		if err := l.checkObject(o); err != nil {
			return nil, err
		}
	}

	wanted := make(map[string]struct{}, len(types))
	for _, t := range types {
		if _, declared := l.eventsOfType[t]; declared {
			wanted[t] = struct{}{}
		}
	}

	if len(objects) == 0 {
		result := roaring.New()
		for t := range wanted {
			for _, e := range l.eventsOfType[t] {
				result.Add(uint32(e))
			}
		}
		return toEventIndices(result), nil
	}

	// Intersection can only shrink, so drive it from the smallest
	// association list.
	ordered := slices.Clone(objects)
	slices.SortStableFunc(ordered, func(a, b ObjectIndex) int {
		return cmp.Compare(len(l.objectEvents[a]), len(l.objectEvents[b]))
	})

	result := roaring.New()
	for _, e := range l.objectEvents[ordered[0]] {
		if _, ok := wanted[l.log.Events[e].Type]; ok {
			result.Add(uint32(e))
		}
	}

	for _, o := range ordered[1:] {
		if result.IsEmpty() {
			break
		}
		other := roaring.New()
		for _, e := range l.objectEvents[o] {
			other.Add(uint32(e))
		}
		result.And(other)
	}

	return toEventIndices(result), nil
}

func toEventIndices(b *roaring.Bitmap) []EventIndex {
	out := make([]EventIndex, 0, b.GetCardinality())
	it := b.Iterator()
	for it.HasNext() {
		out = append(out, EventIndex(it.Next()))
	}
	return out
}

// ObjectRelationSummary returns, per object type, the distinct
// (qualifier, target object type) pairs of object-to-object relations.
// Every declared object type has an entry. Pairs are sorted.
func (l *LinkedLog) ObjectRelationSummary() map[string][]QualifierAndType {
	start := time.Now()
	defer func() {
		queryDuration.WithLabelValues("relation_summary").Observe(time.Since(start).Seconds())
	}()

	out := make(map[string][]QualifierAndType, len(l.relationSummary))
	for objectType, set := range l.relationSummary {
		pairs := make([]QualifierAndType, 0, len(set))
		for p := range set {
			pairs = append(pairs, p)
		}
		slices.SortFunc(pairs, func(a, b QualifierAndType) int {
			if c := cmp.Compare(a.Qualifier, b.Qualifier); c != 0 {
				return c
			}
			return cmp.Compare(a.ObjectType, b.ObjectType)
		})
		out[objectType] = pairs
	}
	return out
}
