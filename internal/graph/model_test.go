package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		node     NodeIndex
		expected string
	}{
		{"Object", ObjectNode(0), "Ob:0"},
		{"Event", EventNode(12), "Ev:12"},
		{"LargeObject", ObjectNode(40213), "Ob:40213"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.node.String())

			parsed, err := ParseNodeIndex(tt.expected)
			require.NoError(t, err)
			assert.Equal(t, tt.node, parsed)
		})
	}
}

func TestParseNodeIndex_Invalid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "Ob", "Ob:", "Ob:-1", "Ob:x", "Xx:1", "ob:1"} {
		_, err := ParseNodeIndex(s)
		assert.Error(t, err, s)
	}
}

func TestNodeIndexAccessors(t *testing.T) {
	t.Parallel()

	o := ObjectNode(3)
	assert.True(t, o.IsObject())
	assert.Equal(t, ObjectIndex(3), o.Object())
	assert.Equal(t, "object", o.Kind.String())

	e := EventNode(5)
	assert.False(t, e.IsObject())
	assert.Equal(t, EventIndex(5), e.Event())
	assert.Equal(t, "event", e.Kind.String())

	// Same position, different index spaces.
	assert.NotEqual(t, ObjectNode(1), EventNode(1))
}

func TestWarningString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		warning  Warning
		contains []string
	}{
		{
			"Dangling",
			Warning{Kind: WarnDanglingReference, SourceKind: KindEvent, SourceID: "e1", TargetID: "o9"},
			[]string{"event e1", "o9", "does not belong"},
		},
		{
			"Duplicate",
			Warning{Kind: WarnDuplicateID, SourceKind: KindObject, SourceID: "o1"},
			[]string{"object ID o1", "more than once"},
		},
		{
			"Undeclared",
			Warning{Kind: WarnUndeclaredType, SourceKind: KindObject, SourceID: "o2", TargetID: "pallet"},
			[]string{"object o2", "undeclared type pallet"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := tt.warning.String()
			for _, c := range tt.contains {
				assert.Contains(t, s, c)
			}
		})
	}
}
