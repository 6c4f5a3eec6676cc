// Package mcp provides the MCP (Model Context Protocol) server for ocelgraph.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/ocelgraph-go/internal/graph"
	"github.com/Benny93/ocelgraph-go/internal/ingestion"
	"github.com/Benny93/ocelgraph-go/internal/subgraph"
)

// ErrUnknownTool is returned by CallTool for unregistered tool names.
var ErrUnknownTool = errors.New("unknown tool")

// ErrUnknownResource is returned by ReadResource for unregistered URIs.
var ErrUnknownResource = errors.New("unknown resource")

// Server represents the MCP server.
type Server struct {
	handle *graph.Handle
	loader *ingestion.Loader
	cache  *subgraph.Cache
	server *mcp.Server
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server over the given handle. loader and
// cache may be nil, which disables ocel_load and ocel_available or turns
// off graph caching respectively.
func NewServer(handle *graph.Handle, loader *ingestion.Loader, cache *subgraph.Cache, version string) *Server {
	s := &Server{
		handle: handle,
		loader: loader,
		cache:  cache,
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "ocelgraph",
		Version: version,
	}, nil)

	s.registerTools()
	s.registerResources()

	return s
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "ocel_info",
			Description: "Summarize the loaded object-centric event log: counts and declared object and event types.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "ocel_events_for_objects",
			Description: "List events of the given types that involve every one of the given objects.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"event_types": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Event types to include",
					},
					"object_ids": {
						Type:        "array",
						Items:       &jsonschema.Schema{Type: "string"},
						Description: "Objects every returned event must involve. Empty means all events of the types.",
					},
				},
				Required: []string{"event_types"},
			},
		},
		{
			Name:        "ocel_relations",
			Description: "List every object or event directly related to the given one, in both directions.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string", Description: "Object or event identifier"},
				},
				Required: []string{"id"},
			},
		},
		{
			Name:        "ocel_relation_summary",
			Description: "Show which qualifiers link each object type to which other object types.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "ocel_graph",
			Description: "Extract the neighbourhood of an object or event as a node and link list.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"root":           {Type: "string", Description: "Identifier of the starting object or event"},
					"root_is_object": {Type: "boolean", Description: "Whether root names an object (default true)"},
					"max_distance":   {Type: "integer", Description: "Number of hops to expand (default 1)"},
					"spanning_tree":  {Type: "boolean", Description: "Only emit the link that discovered each node"},
				},
				Required: []string{"root"},
			},
		},
		{
			Name:        "ocel_available",
			Description: "List log files available in the data directory.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{},
			},
		},
		{
			Name:        "ocel_load",
			Description: "Load a log file from the data directory, replacing the current index.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":   {Type: "string", Description: "File name relative to the data directory"},
					"stored": {Type: "boolean", Description: "Load from the log store instead"},
				},
				Required: []string{"name"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "ocel://info",
			Name:        "Log Overview",
			Description: "Counts and types of the loaded event log",
			MimeType:    "text/plain",
		},
		{
			URI:         "ocel://schema",
			Name:        "Index Schema",
			Description: "Description of the object-centric event log model",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "ocel_info":
		return s.handleInfo()
	case "ocel_events_for_objects":
		return s.handleEventsForObjects(stringSlice(args["event_types"]), stringSlice(args["object_ids"]))
	case "ocel_relations":
		id, _ := args["id"].(string)
		return s.handleRelations(id)
	case "ocel_relation_summary":
		return s.handleRelationSummary()
	case "ocel_graph":
		opts := subgraph.Options{RootIsObject: true, MaxDistance: 1}
		opts.Root, _ = args["root"].(string)
		if v, ok := args["root_is_object"].(bool); ok {
			opts.RootIsObject = v
		}
		if v, ok := args["max_distance"].(float64); ok {
			opts.MaxDistance = int(v)
		}
		opts.SpanningTree, _ = args["spanning_tree"].(bool)
		return s.handleGraph(opts)
	case "ocel_available":
		return s.handleAvailable()
	case "ocel_load":
		name, _ := args["name"].(string)
		stored, _ := args["stored"].(bool)
		return s.handleLoad(ctx, name, stored)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "ocel://info":
		return s.getOverview(), nil
	case "ocel://schema":
		return getSchema(), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, uri)
	}
}

// Serve runs the server on the given transport until the client
// disconnects or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

// Run starts the MCP server with stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Connect attaches a single session on t and returns without blocking.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// Tool Handlers

const noIndexMessage = "No log loaded. Use `ocel_available` and `ocel_load` first."

func (s *Server) handleInfo() (string, error) {
	l, err := s.handle.Snapshot()
	if errors.Is(err, graph.ErrNoIndexLoaded) {
		return noIndexMessage, nil
	}
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("## Loaded Log\n\n")
	fmt.Fprintf(&sb, "**Objects:** %d\n", l.ObjectCount())
	fmt.Fprintf(&sb, "**Events:** %d\n", l.EventCount())
	fmt.Fprintf(&sb, "**Relations:** %d\n", l.Stats().Relations)
	if n := l.Stats().DroppedReferences; n > 0 {
		fmt.Fprintf(&sb, "**Dropped references:** %d\n", n)
	}

	sb.WriteString("\n### Object Types\n\n")
	for _, t := range l.ObjectTypes() {
		objects, _ := l.ObjectsOfType(t)
		fmt.Fprintf(&sb, "- %s (%d)\n", t, len(objects))
	}
	sb.WriteString("\n### Event Types\n\n")
	for _, t := range l.EventTypes() {
		events, _ := l.EventsOfType(t)
		fmt.Fprintf(&sb, "- %s (%d)\n", t, len(events))
	}

	sb.WriteString("\nNext: Use `ocel_relations` on an object or event identifier.")
	return sb.String(), nil
}

func (s *Server) handleEventsForObjects(eventTypes, objectIDs []string) (string, error) {
	var (
		ids []string
		sb  strings.Builder
	)
	err := s.handle.With(func(l *graph.LinkedLog) error {
		objects, err := l.ResolveObjects(objectIDs)
		if err != nil {
			return err
		}
		events, err := l.EventsOfTypesAssociatedWithObjects(eventTypes, objects)
		if err != nil {
			return err
		}
		for _, e := range events {
			ev, err := l.Event(e)
			if err != nil {
				return err
			}
			ids = append(ids, ev.ID)
		}
		return nil
	})
	switch {
	case errors.Is(err, graph.ErrNoIndexLoaded):
		return noIndexMessage, nil
	case errors.Is(err, graph.ErrUnknownIdentifier):
		return err.Error(), nil
	case err != nil:
		return "", err
	}

	if len(ids) == 0 {
		return "No matching events found.", nil
	}
	fmt.Fprintf(&sb, "Found %d events of types %s", len(ids), strings.Join(eventTypes, ", "))
	if len(objectIDs) > 0 {
		fmt.Fprintf(&sb, " involving %s", strings.Join(objectIDs, ", "))
	}
	sb.WriteString(":\n\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "- %s\n", id)
	}
	return sb.String(), nil
}

func (s *Server) handleRelations(id string) (string, error) {
	if id == "" {
		return "No identifier provided", nil
	}

	var sb strings.Builder
	err := s.handle.With(func(l *graph.LinkedLog) error {
		n, ok := l.NodeIndexOf(id)
		if !ok {
			fmt.Fprintf(&sb, "'%s' not found in the loaded log", id)
			return nil
		}
		typ, err := l.NodeType(n)
		if err != nil {
			return err
		}
		rels, err := l.SymmetricRelations(n)
		if err != nil {
			return err
		}

		fmt.Fprintf(&sb, "Relations of **%s** (%s %s)\n\n", id, n.Kind, typ)
		if len(rels) == 0 {
			sb.WriteString("No relations found.\n")
			return nil
		}
		fmt.Fprintf(&sb, "## Related (%d)\n", len(rels))
		for _, r := range rels {
			other, err := l.NodeID(r.Node)
			if err != nil {
				return err
			}
			otherType, err := l.NodeType(r.Node)
			if err != nil {
				return err
			}
			arrow := "->"
			if r.Reversed {
				arrow = "<-"
			}
			fmt.Fprintf(&sb, "- %s %s (%s %s) [%s]\n", arrow, other, r.Node.Kind, otherType, r.Qualifier)
		}
		return nil
	})
	if errors.Is(err, graph.ErrNoIndexLoaded) {
		return noIndexMessage, nil
	}
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (s *Server) handleRelationSummary() (string, error) {
	summary, err := s.handle.ObjectRelationSummary()
	if errors.Is(err, graph.ErrNoIndexLoaded) {
		return noIndexMessage, nil
	}
	if err != nil {
		return "", err
	}
	if len(summary) == 0 {
		return "No object-to-object relations in the loaded log.", nil
	}

	types := make([]string, 0, len(summary))
	for t := range summary {
		types = append(types, t)
	}
	sort.Strings(types)

	var sb strings.Builder
	sb.WriteString("## Object Relations by Type\n\n")
	for _, t := range types {
		fmt.Fprintf(&sb, "### %s\n", t)
		for _, qt := range summary[t] {
			fmt.Fprintf(&sb, "- %s -> %s\n", qt.Qualifier, qt.ObjectType)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (s *Server) handleGraph(opts subgraph.Options) (string, error) {
	if opts.Root == "" {
		return "No root provided", nil
	}

	l, err := s.handle.Snapshot()
	if errors.Is(err, graph.ErrNoIndexLoaded) {
		return noIndexMessage, nil
	}
	if err != nil {
		return "", err
	}

	var g *subgraph.Graph
	if s.cache != nil {
		g, err = s.cache.Extract(l, opts)
	} else {
		g, err = subgraph.Extract(l, opts)
	}
	if errors.Is(err, subgraph.ErrRootNotFound) || errors.Is(err, subgraph.ErrInvalidOptions) {
		return err.Error(), nil
	}
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshaling graph: %w", err)
	}
	return string(data), nil
}

func (s *Server) handleAvailable() (string, error) {
	if s.loader == nil {
		return "No data directory configured.", nil
	}
	entries, err := ingestion.Discover(s.loader.DataDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No log files found in %s.", s.loader.DataDir), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Available Logs (%d)\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s (%s, %d bytes)\n", e.Name, e.Format, e.Size)
	}
	sb.WriteString("\nNext: Use `ocel_load` with one of these names.")
	return sb.String(), nil
}

func (s *Server) handleLoad(ctx context.Context, name string, stored bool) (string, error) {
	if s.loader == nil {
		return "Loading is disabled.", nil
	}
	if name == "" {
		return "No name provided", nil
	}

	var (
		res *ingestion.LoadResult
		err error
	)
	if stored {
		res, err = s.loader.LoadStored(ctx, name)
	} else {
		res, err = s.loader.LoadFile(ctx, name)
	}
	if err != nil {
		return fmt.Sprintf("Loading '%s' failed: %v", name, err), nil
	}
	return fmt.Sprintf("Loaded **%s**: %d objects, %d events, %d relations.",
		name, res.Stats.Objects, res.Stats.Events, res.Stats.Relations), nil
}

// Resource Handlers

func (s *Server) getOverview() string {
	info, err := s.handle.Info()
	if err != nil {
		return "# ocelgraph\n\n" + noIndexMessage + "\n"
	}

	var sb strings.Builder
	sb.WriteString("# ocelgraph Log Overview\n\n")
	fmt.Fprintf(&sb, "**Objects:** %d\n", info.NumObjects)
	fmt.Fprintf(&sb, "**Events:** %d\n", info.NumEvents)
	sb.WriteString("\n## Object Types\n\n")
	for _, t := range info.ObjectTypes {
		fmt.Fprintf(&sb, "- %s\n", t.Name)
	}
	sb.WriteString("\n## Event Types\n\n")
	for _, t := range info.EventTypes {
		fmt.Fprintf(&sb, "- %s\n", t.Name)
	}
	return sb.String()
}

func getSchema() string {
	var sb strings.Builder
	sb.WriteString("# ocelgraph Index Schema\n\n")
	sb.WriteString("## Entities\n\n")
	sb.WriteString("| Kind | Description | Key Properties |\n")
	sb.WriteString("|------|-------------|----------------|\n")
	sb.WriteString("| `object` | Business object | id, type, attributes, relationships |\n")
	sb.WriteString("| `event` | Timestamped occurrence | id, type, time, attributes, relationships |\n")
	sb.WriteString("\n## Relationships\n\n")
	sb.WriteString("| Source → Target | Properties |\n")
	sb.WriteString("|-----------------|------------|\n")
	sb.WriteString("| Event → Object | qualifier |\n")
	sb.WriteString("| Object → Object | qualifier |\n")
	sb.WriteString("\nEvery relationship is also traversable in reverse. ")
	sb.WriteString("Events never relate to other events directly.\n")
	return sb.String()
}

// Helper functions

func stringSlice(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

// registerTools registers every ListTools entry with the SDK server,
// dispatching to CallTool.
func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := map[string]any{}
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return textResult("invalid arguments: "+err.Error(), true), nil
				}
			}
			text, err := s.CallTool(ctx, tool.Name, args)
			if err != nil {
				return textResult(err.Error(), true), nil
			}
			return textResult(text, false), nil
		})
	}
}

// registerResources registers every ListResources entry with the SDK
// server, dispatching to ReadResource.
func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, req.Params.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      req.Params.URI,
					MIMEType: res.MimeType,
					Text:     text,
				}},
			}, nil
		})
	}
}
