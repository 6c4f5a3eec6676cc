// Package subgraph extracts the neighbourhood of an object or event from a
// linked log as a node/link graph suitable for visualization.
package subgraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/Benny93/ocelgraph-go/internal/graph"
)

// DefaultMaxNodes caps the graph size when Options.MaxNodes is zero.
const DefaultMaxNodes = 1000

var (
	// ErrRootNotFound is returned when the root identifier does not resolve.
	ErrRootNotFound = errors.New("root not found")

	// ErrInvalidOptions is returned for negative limits.
	ErrInvalidOptions = errors.New("invalid graph options")
)

// Options controls an extraction.
type Options struct {
	// Root is the identifier of the starting object or event.
	Root string `json:"root"`

	// RootIsObject selects whether Root names an object or an event.
	RootIsObject bool `json:"rootIsObject"`

	// MaxDistance is the number of hops to expand from the root.
	MaxDistance int `json:"maxDistance"`

	// RelsSizeIgnoreThreshold stops expansion at nodes with more relations
	// than this. The node itself is still included. Zero disables the
	// check. The root is always expanded.
	RelsSizeIgnoreThreshold int `json:"relsSizeIgnoreThreshold"`

	// SpanningTree emits only the link that discovered each node.
	SpanningTree bool `json:"spanningTree"`

	// MaxNodes caps the number of nodes. Zero means DefaultMaxNodes.
	MaxNodes int `json:"maxNodes"`
}

func (o Options) validate() error {
	if o.MaxDistance < 0 || o.RelsSizeIgnoreThreshold < 0 || o.MaxNodes < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidOptions)
	}
	return nil
}

// Node is an object or event of the extracted graph.
type Node struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// Kind is "object" or "event".
	Kind string `json:"kind"`

	// Time is set for events only.
	Time *time.Time `json:"time,omitempty"`

	// Distance is the hop count from the root.
	Distance int `json:"distance"`
}

// Link is a qualified relationship between two nodes of the graph, in the
// direction it was declared in the log.
type Link struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Qualifier string `json:"qualifier"`
}

// Graph is an extracted neighbourhood.
//
// Graphs handed out by a Cache are shared and must not be modified.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`

	// Truncated is set when MaxNodes stopped the expansion.
	Truncated bool `json:"truncated"`
}

type queued struct {
	node     graph.NodeIndex
	distance int
}

// Extract runs a breadth-first expansion over the symmetric relations of l
// starting at the root named in opts.
func Extract(l *graph.LinkedLog, opts Options) (*Graph, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	maxNodes := opts.MaxNodes
	if maxNodes == 0 {
		maxNodes = DefaultMaxNodes
	}

	var root graph.NodeIndex
	if opts.RootIsObject {
		o, ok := l.ObjectIndexOf(opts.Root)
		if !ok {
			return nil, fmt.Errorf("%w: object %q", ErrRootNotFound, opts.Root)
		}
		root = graph.ObjectNode(o)
	} else {
		e, ok := l.EventIndexOf(opts.Root)
		if !ok {
			return nil, fmt.Errorf("%w: event %q", ErrRootNotFound, opts.Root)
		}
		root = graph.EventNode(e)
	}

	g := &Graph{Nodes: []Node{}, Links: []Link{}}
	visited := map[graph.NodeIndex]struct{}{root: {}}
	seenLinks := make(map[Link]struct{})

	addNode := func(n graph.NodeIndex, distance int) error {
		node, err := makeNode(l, n, distance)
		if err != nil {
			return err
		}
		g.Nodes = append(g.Nodes, node)
		return nil
	}
	addLink := func(from graph.NodeIndex, rel graph.SymmetricRelation) error {
		fromID, err := l.NodeID(from)
		if err != nil {
			return err
		}
		toID, err := l.NodeID(rel.Node)
		if err != nil {
			return err
		}
		link := Link{Source: fromID, Target: toID, Qualifier: rel.Qualifier}
		if rel.Reversed {
			link.Source, link.Target = toID, fromID
		}
		if _, dup := seenLinks[link]; dup {
			return nil
		}
		seenLinks[link] = struct{}{}
		g.Links = append(g.Links, link)
		return nil
	}

	if err := addNode(root, 0); err != nil {
		return nil, err
	}

	queue := []queued{{node: root, distance: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.distance >= opts.MaxDistance {
			continue
		}
		if cur.node != root && opts.RelsSizeIgnoreThreshold > 0 {
			degree, err := l.SymmetricDegree(cur.node)
			if err != nil {
				return nil, err
			}
			if degree > opts.RelsSizeIgnoreThreshold {
				continue
			}
		}

		rels, err := l.SymmetricRelations(cur.node)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if _, seen := visited[rel.Node]; seen {
				if !opts.SpanningTree {
					if err := addLink(cur.node, rel); err != nil {
						return nil, err
					}
				}
				continue
			}
			if len(g.Nodes) >= maxNodes {
				g.Truncated = true
				continue
			}
			visited[rel.Node] = struct{}{}
			if err := addNode(rel.Node, cur.distance+1); err != nil {
				return nil, err
			}
			if err := addLink(cur.node, rel); err != nil {
				return nil, err
			}
			queue = append(queue, queued{node: rel.Node, distance: cur.distance + 1})
		}
	}

	return g, nil
}

func makeNode(l *graph.LinkedLog, n graph.NodeIndex, distance int) (Node, error) {
	if n.IsObject() {
		ob, err := l.Object(n.Object())
		if err != nil {
			return Node{}, err
		}
		return Node{ID: ob.ID, Type: ob.Type, Kind: graph.KindObject.String(), Distance: distance}, nil
	}
	ev, err := l.Event(n.Event())
	if err != nil {
		return Node{}, err
	}
	t := ev.Time
	return Node{ID: ev.ID, Type: ev.Type, Kind: graph.KindEvent.String(), Time: &t, Distance: distance}, nil
}
