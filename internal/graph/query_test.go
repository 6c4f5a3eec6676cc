package graph

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/ocelgraph-go/internal/ocel"
)

func TestEventsOfTypesAssociatedWithObjects_OrderScenario(t *testing.T) {
	t.Parallel()

	log := &ocel.Log{
		ObjectTypes: []ocel.Type{{Name: "order"}},
		EventTypes:  []ocel.Type{{Name: "place"}},
		Objects: []ocel.Object{
			{ID: "o1", Type: "order"},
			{ID: "o2", Type: "order"},
		},
		Events: []ocel.Event{
			{ID: "e1", Type: "place", Relationships: []ocel.Relationship{rel("o1", ""), rel("o2", "")}},
			{ID: "e2", Type: "place", Relationships: []ocel.Relationship{rel("o1", "")}},
		},
	}
	l := Build(context.Background(), log, BuildOptions{})
	o1, o2 := mustObject(t, l, "o1"), mustObject(t, l, "o2")
	e1, e2 := mustEvent(t, l, "e1"), mustEvent(t, l, "e2")
	place := []string{"place"}

	t.Run("BothObjects", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects(place, []ObjectIndex{o1, o2})
		require.NoError(t, err)
		assert.ElementsMatch(t, []EventIndex{e1}, got)
	})

	t.Run("SingleObject", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects(place, []ObjectIndex{o1})
		require.NoError(t, err)
		assert.ElementsMatch(t, []EventIndex{e1, e2}, got)
	})

	t.Run("NoObjects", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects(place, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []EventIndex{e1, e2}, got)
	})
}

func TestEventsOfTypesAssociatedWithObjects(t *testing.T) {
	t.Parallel()

	l, _ := buildOrderLog(t)
	o1, o2 := mustObject(t, l, "o1"), mustObject(t, l, "o2")
	c1 := mustObject(t, l, "c1")

	t.Run("NoObjectsIsCatalogUnion", func(t *testing.T) {
		t.Parallel()
		types := []string{"place", "pay"}
		got, err := l.EventsOfTypesAssociatedWithObjects(types, nil)
		require.NoError(t, err)

		var want []EventIndex
		for _, name := range types {
			list, err := l.EventsOfType(name)
			require.NoError(t, err)
			want = append(want, list...)
		}
		assert.ElementsMatch(t, want, got)
	})

	t.Run("SingleObjectIsFilteredAssociation", func(t *testing.T) {
		t.Parallel()
		for _, o := range []ObjectIndex{o1, o2, c1} {
			got, err := l.EventsOfTypesAssociatedWithObjects([]string{"pay"}, []ObjectIndex{o})
			require.NoError(t, err)

			assoc, err := l.ObjectEvents(o)
			require.NoError(t, err)
			var want []EventIndex
			for _, e := range assoc {
				ev, err := l.Event(e)
				require.NoError(t, err)
				if ev.Type == "pay" && !slices.Contains(want, e) {
					want = append(want, e)
				}
			}
			assert.ElementsMatch(t, want, got, "object %s", o)
		}
	})

	t.Run("TypeFilter", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects([]string{"pay"}, []ObjectIndex{o2})
		require.NoError(t, err)
		assert.Equal(t, []EventIndex{mustEvent(t, l, "e3")}, got)
	})

	t.Run("EmptyIntersection", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects([]string{"place", "pay"}, []ObjectIndex{o1, c1, o2})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NoTypes", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects(nil, []ObjectIndex{o1})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("UndeclaredTypeMatchesNothing", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects([]string{"ship"}, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("DuplicateObjects", func(t *testing.T) {
		t.Parallel()
		got, err := l.EventsOfTypesAssociatedWithObjects([]string{"place"}, []ObjectIndex{o1, o1})
		require.NoError(t, err)
		assert.ElementsMatch(t, []EventIndex{0, 1}, got)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		t.Parallel()
		_, err := l.EventsOfTypesAssociatedWithObjects([]string{"place"}, []ObjectIndex{o1, 42})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})
}

// randomLog builds a log where every event relates to a random subset of
// objects.
func randomLog(r *rand.Rand, numObjects, numEvents int) *ocel.Log {
	log := &ocel.Log{
		ObjectTypes: []ocel.Type{{Name: "a"}, {Name: "b"}},
		EventTypes:  []ocel.Type{{Name: "x"}, {Name: "y"}, {Name: "z"}},
	}
	for i := range numObjects {
		log.Objects = append(log.Objects, ocel.Object{
			ID:   "o" + string(rune('A'+i)),
			Type: log.ObjectTypes[i%2].Name,
		})
	}
	for i := range numEvents {
		ev := ocel.Event{ID: "e" + string(rune('A'+i)), Type: log.EventTypes[r.IntN(3)].Name}
		for _, ob := range log.Objects {
			if r.IntN(3) == 0 {
				ev.Relationships = append(ev.Relationships, rel(ob.ID, "q"))
			}
		}
		log.Events = append(log.Events, ev)
	}
	return log
}

func TestEventsOfTypesAssociatedWithObjects_OrderIndependent(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(7, 11))
	l := Build(context.Background(), randomLog(r, 8, 40), BuildOptions{})
	types := []string{"x", "y"}

	for range 25 {
		k := 1 + r.IntN(4)
		objects := make([]ObjectIndex, k)
		for i := range objects {
			objects[i] = ObjectIndex(r.IntN(l.ObjectCount()))
		}

		want, err := l.EventsOfTypesAssociatedWithObjects(types, objects)
		require.NoError(t, err)

		// Brute force: every event of a wanted type related to all objects.
		var brute []EventIndex
		for e := range l.EventCount() {
			ev, _ := l.Event(EventIndex(e))
			if !slices.Contains(types, ev.Type) {
				continue
			}
			all := true
			for _, o := range objects {
				assoc, _ := l.ObjectEvents(o)
				if !slices.Contains(assoc, EventIndex(e)) {
					all = false
					break
				}
			}
			if all {
				brute = append(brute, EventIndex(e))
			}
		}
		assert.ElementsMatch(t, brute, want)

		shuffled := slices.Clone(objects)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := l.EventsOfTypesAssociatedWithObjects(types, shuffled)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, got)
	}
}

func TestObjectRelationSummary(t *testing.T) {
	t.Parallel()

	l, _ := buildOrderLog(t)
	summary := l.ObjectRelationSummary()

	assert.Len(t, summary, 4, "every declared object type has an entry")
	assert.Equal(t, []QualifierAndType{
		{Qualifier: "contains", ObjectType: "item"},
		{Qualifier: "placed by", ObjectType: "customer"},
	}, summary["order"])
	assert.Empty(t, summary["item"])
	assert.Empty(t, summary["customer"])
	assert.Empty(t, summary["invoice"])
}

func BenchmarkEventsOfTypesAssociatedWithObjects(b *testing.B) {
	r := rand.New(rand.NewPCG(1, 2))
	l := Build(context.Background(), randomLog(r, 20, 2000), BuildOptions{OnWarning: func(Warning) {}})
	objects := []ObjectIndex{1, 3, 5}
	types := []string{"x", "y", "z"}

	b.ResetTimer()
	for b.Loop() {
		_, _ = l.EventsOfTypesAssociatedWithObjects(types, objects)
	}
}
