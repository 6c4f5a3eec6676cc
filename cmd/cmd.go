// Package cmd provides CLI command implementations for ocelgraph.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/ocelgraph-go/internal/api"
	"github.com/Benny93/ocelgraph-go/internal/config"
	"github.com/Benny93/ocelgraph-go/internal/graph"
	"github.com/Benny93/ocelgraph-go/internal/ingestion"
	"github.com/Benny93/ocelgraph-go/internal/ocel"
	"github.com/Benny93/ocelgraph-go/internal/storage"
	"github.com/Benny93/ocelgraph-go/internal/subgraph"
	"github.com/Benny93/ocelgraph-go/internal/telemetry"
	"github.com/Benny93/ocelgraph-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Runtime is bound into every command's Run method.
type Runtime struct {
	// Out receives user-facing output.
	Out io.Writer

	Logger *slog.Logger

	// level controls Logger. levelFixed is set when --verbose or --quiet
	// was given, so the config file's log_level does not override it.
	level      *slog.LevelVar
	levelFixed bool
}

// applyLogLevel sets the log level from a config value unless a flag
// already chose one.
func (rt *Runtime) applyLogLevel(name string) error {
	if rt.levelFixed {
		return nil
	}
	level, err := config.ParseLevel(name)
	if err != nil {
		return err
	}
	rt.level.Set(level)
	return nil
}

func (rt *Runtime) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(rt.Out, format+"\n", args...)
}

func (rt *Runtime) warn(format string, args ...any) {
	color.New(color.FgYellow).Fprintf(rt.Out, format+"\n", args...)
}

// ServiceFlags are shared by the long-running commands. Flags override the
// config file, which overrides the defaults.
type ServiceFlags struct {
	Config   string `short:"c" type:"path" env:"OCELGRAPH_CONFIG" help:"YAML config file"`
	DataDir  string `type:"path" env:"OCELGRAPH_DATA_DIR" help:"Directory holding log files"`
	StoreDir string `type:"path" env:"OCELGRAPH_STORE_DIR" help:"Badger directory for stored logs"`
	Load     string `help:"Log in the data directory to load at startup"`
}

func (f *ServiceFlags) resolve() (config.Config, error) {
	cfg := config.Default()
	if f.Config != "" {
		var err error
		if cfg, err = config.Load(f.Config); err != nil {
			return cfg, err
		}
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.StoreDir != "" {
		cfg.StoreDir = f.StoreDir
	}
	return cfg, cfg.Validate()
}

// service is the wiring shared by serve and mcp.
type service struct {
	handle *graph.Handle
	loader *ingestion.Loader
	store  storage.LogStore
	cache  *subgraph.Cache
}

func openService(cfg config.Config, logger *slog.Logger) (*service, error) {
	svc := &service{
		handle: graph.NewHandle(graph.BuildOptions{Logger: logger}),
	}

	if cfg.StoreDir != "" {
		store := storage.NewBadgerStore()
		if err := store.Initialize(cfg.StoreDir, false); err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		svc.store = store
	}

	cache, err := subgraph.NewCache(cfg.CacheSize)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.cache = cache

	svc.loader = ingestion.NewLoader(cfg.DataDir, svc.handle, svc.store)
	svc.loader.MaxBytes = cfg.MaxUploadBytes
	svc.loader.Logger = logger
	return svc, nil
}

func (s *service) loadInitial(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if _, err := s.loader.LoadFile(ctx, name); err != nil {
		return fmt.Errorf("loading %s: %w", name, err)
	}
	return nil
}

// Close releases the store, if any.
func (s *service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// ServeCmd starts the HTTP service.
type ServeCmd struct {
	ServiceFlags `embed:""`

	Addr  string `env:"OCELGRAPH_LISTEN_ADDR" help:"Listen address"`
	Watch bool   `short:"w" env:"OCELGRAPH_WATCH" help:"Watch the data directory and import new logs into the store"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(rt *Runtime) error {
	cfg, err := c.resolve()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.ListenAddr = c.Addr
	}
	if c.Watch {
		cfg.Watch = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := rt.applyLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    "ocelgraph",
		ServiceVersion: Version,
		Exporter:       cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Writer:         os.Stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	svc, err := openService(cfg, rt.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.loadInitial(ctx, c.Load); err != nil {
		return err
	}

	if cfg.Watch {
		go func() {
			err := ingestion.WatchDataDir(ctx, cfg.DataDir, func(entries []ingestion.FileEntry) {
				rt.Logger.Info("data directory changed", slog.Int("logs", len(entries)))
				if svc.store == nil {
					return
				}
				if _, err := svc.loader.ImportAll(ctx, entries); err != nil {
					rt.Logger.Warn("importing logs failed", slog.Any("error", err))
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				rt.Logger.Error("watch error", slog.Any("error", err))
			}
		}()
		rt.Logger.Info("watching data directory", slog.String("dir", cfg.DataDir))
	}

	server := api.NewServer(svc.handle, svc.loader, svc.store, svc.cache, rt.Logger, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		MetricsEnabled: cfg.MetricsEnabled,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	rt.success("Serving on http://%s (data: %s)", cfg.ListenAddr, cfg.DataDir)
	return server.Run(ctx, cfg.ListenAddr)
}

// MCPCmd starts the MCP server.
type MCPCmd struct {
	ServiceFlags `embed:""`
}

// Run executes the mcp command.
func (c *MCPCmd) Run(rt *Runtime) error {
	cfg, err := c.resolve()
	if err != nil {
		return err
	}
	if err := rt.applyLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	svc, err := openService(cfg, rt.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.loadInitial(ctx, c.Load); err != nil {
		return err
	}

	// Stdout carries the protocol; logs go to stderr.
	return mcp.NewServer(svc.handle, svc.loader, svc.cache, Version).Run(ctx)
}

// InfoCmd summarizes a log file.
type InfoCmd struct {
	File string `arg:"" type:"existingfile" help:"OCEL 2.0 JSON or XML file"`
	JSON bool   `help:"Print the summary as JSON"`
}

// Run executes the info command.
func (c *InfoCmd) Run(rt *Runtime) error {
	l, warnings, err := buildFile(rt, c.File)
	if err != nil {
		return err
	}

	if c.JSON {
		return writeJSON(rt.Out, l.Info())
	}

	stats := l.Stats()
	rt.success("%s", c.File)
	fmt.Fprintf(rt.Out, "  Objects:        %d\n", stats.Objects)
	fmt.Fprintf(rt.Out, "  Events:         %d\n", stats.Events)
	fmt.Fprintf(rt.Out, "  Relations:      %d\n", stats.Relations)
	fmt.Fprintf(rt.Out, "  Duration:       %.3fs\n", stats.DurationSecs)

	fmt.Fprintln(rt.Out, "\nObject types:")
	for _, t := range l.ObjectTypes() {
		objects, _ := l.ObjectsOfType(t)
		fmt.Fprintf(rt.Out, "  %-24s %d\n", t, len(objects))
	}
	fmt.Fprintln(rt.Out, "\nEvent types:")
	for _, t := range l.EventTypes() {
		events, _ := l.EventsOfType(t)
		fmt.Fprintf(rt.Out, "  %-24s %d\n", t, len(events))
	}

	if warnings > 0 {
		fmt.Fprintln(rt.Out)
		rt.warn("%d data-quality warnings (%d dropped references, %d duplicate IDs); rerun with --verbose for details",
			warnings, stats.DroppedReferences, stats.DuplicateIDs)
	}
	return nil
}

// QueryCmd lists events of the given types involving all given objects.
type QueryCmd struct {
	File    string   `arg:"" type:"existingfile" help:"OCEL 2.0 JSON or XML file"`
	Types   []string `name:"type" short:"t" help:"Event type to include (repeatable). Defaults to every declared event type."`
	Objects []string `name:"object" short:"o" help:"Object every event must involve (repeatable)"`
}

// Run executes the query command.
func (c *QueryCmd) Run(rt *Runtime) error {
	l, _, err := buildFile(rt, c.File)
	if err != nil {
		return err
	}

	types := c.Types
	if len(types) == 0 {
		types = l.EventTypes()
	}
	objects, err := l.ResolveObjects(c.Objects)
	if err != nil {
		return err
	}
	events, err := l.EventsOfTypesAssociatedWithObjects(types, objects)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(rt.Out, "No matching events")
		return nil
	}
	for _, e := range events {
		ev, err := l.Event(e)
		if err != nil {
			return err
		}
		fmt.Fprintf(rt.Out, "%s\t%s\t%s\n", ev.ID, ev.Type, ev.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

// RelationsCmd shows the relations of one object or event, or the
// object-type relation summary.
type RelationsCmd struct {
	File string `arg:"" type:"existingfile" help:"OCEL 2.0 JSON or XML file"`
	ID   string `arg:"" optional:"" help:"Object or event identifier. Omit for the per-type summary."`
}

// Run executes the relations command.
func (c *RelationsCmd) Run(rt *Runtime) error {
	l, _, err := buildFile(rt, c.File)
	if err != nil {
		return err
	}

	if c.ID == "" {
		summary := l.ObjectRelationSummary()
		types := make([]string, 0, len(summary))
		for t := range summary {
			types = append(types, t)
		}
		slices.Sort(types)
		if len(types) == 0 {
			fmt.Fprintln(rt.Out, "No object-to-object relations")
			return nil
		}
		for _, t := range types {
			fmt.Fprintf(rt.Out, "%s\n", t)
			for _, qt := range summary[t] {
				fmt.Fprintf(rt.Out, "  %s -> %s\n", qt.Qualifier, qt.ObjectType)
			}
		}
		return nil
	}

	n, ok := l.NodeIndexOf(c.ID)
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrUnknownIdentifier, c.ID)
	}
	rels, err := l.SymmetricRelations(n)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Fprintf(rt.Out, "%s has no relations\n", c.ID)
		return nil
	}
	for _, r := range rels {
		other, err := l.NodeID(r.Node)
		if err != nil {
			return err
		}
		arrow := "->"
		if r.Reversed {
			arrow = "<-"
		}
		fmt.Fprintf(rt.Out, "%s %s %s\t%s\n", arrow, r.Node.Kind, other, r.Qualifier)
	}
	return nil
}

// AvailableCmd lists log files in the data directory.
type AvailableCmd struct {
	DataDir string `type:"path" default:"./data/" env:"OCELGRAPH_DATA_DIR" help:"Directory holding log files"`
}

// Run executes the available command.
func (c *AvailableCmd) Run(rt *Runtime) error {
	entries, err := ingestion.Discover(c.DataDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(rt.Out, "No log files found in %s\n", c.DataDir)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(rt.Out, "%-40s %-4s %10d\n", e.Name, e.Format, e.Size)
	}
	return nil
}

// ImportCmd copies data-directory logs into the store.
type ImportCmd struct {
	Names    []string `arg:"" optional:"" help:"Logs to import. Omit to import every available log."`
	DataDir  string   `type:"path" default:"./data/" env:"OCELGRAPH_DATA_DIR" help:"Directory holding log files"`
	StoreDir string   `type:"path" required:"" env:"OCELGRAPH_STORE_DIR" help:"Badger directory for stored logs"`
}

// Run executes the import command.
func (c *ImportCmd) Run(rt *Runtime) error {
	entries, err := ingestion.Discover(c.DataDir)
	if err != nil {
		return err
	}
	if len(c.Names) > 0 {
		selected := make([]ingestion.FileEntry, 0, len(c.Names))
		for _, name := range c.Names {
			i := slices.IndexFunc(entries, func(e ingestion.FileEntry) bool { return e.Name == name })
			if i < 0 {
				return fmt.Errorf("%s: %w", name, os.ErrNotExist)
			}
			selected = append(selected, entries[i])
		}
		entries = selected
	}

	store := storage.NewBadgerStore()
	if err := store.Initialize(c.StoreDir, false); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer func() { _ = store.Close() }()

	loader := ingestion.NewLoader(c.DataDir, nil, store)
	loader.Logger = rt.Logger
	n, err := loader.ImportAll(context.Background(), entries)
	if err != nil {
		return err
	}
	rt.success("Imported %d of %d logs into %s", n, len(entries), c.StoreDir)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(rt *Runtime) error {
	fmt.Fprintf(rt.Out, "ocelgraph %s\n", Version)
	return nil
}

// Helper functions

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// buildFile decodes and indexes a log file, logging build warnings at
// DEBUG. It returns the number of warnings.
func buildFile(rt *Runtime, path string) (*graph.LinkedLog, int, error) {
	log, err := ocel.LoadFile(path)
	if err != nil {
		return nil, 0, err
	}

	warnings := 0
	l := graph.Build(context.Background(), log, graph.BuildOptions{
		OnWarning: func(w graph.Warning) {
			warnings++
			rt.Logger.Debug(w.String(), slog.String("kind", string(w.Kind)))
		},
	})
	return l, warnings, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`

	// Commands
	Serve     ServeCmd     `cmd:"" help:"Start the HTTP service"`
	MCP       MCPCmd       `cmd:"" help:"Start MCP server (stdio transport)"`
	Info      InfoCmd      `cmd:"" help:"Summarize a log file"`
	Query     QueryCmd     `cmd:"" help:"List events of given types involving all given objects"`
	Relations RelationsCmd `cmd:"" help:"Show relations of an object or event"`
	Available AvailableCmd `cmd:"" help:"List log files in the data directory"`
	Import    ImportCmd    `cmd:"" help:"Copy data-directory logs into the store"`
	VersionCmd VersionCmd  `cmd:"" name:"version" help:"Print the version"`

	out    io.Writer `kong:"-"`
	errOut io.Writer `kong:"-"`
}

// NewCLI creates a new CLI instance writing to stdout and logging to
// stderr.
func NewCLI() *CLI {
	return &CLI{out: os.Stdout, errOut: os.Stderr}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("ocelgraph"),
		kong.Description("Index and query object-centric event logs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	rt := c.runtime()
	slog.SetDefault(rt.Logger)
	return kongCtx.Run(rt)
}

func (c *CLI) runtime() *Runtime {
	rt := &Runtime{Out: c.out, level: new(slog.LevelVar)}
	switch {
	case c.Verbose:
		rt.level.Set(slog.LevelDebug)
		rt.levelFixed = true
	case c.Quiet:
		rt.level.Set(slog.LevelError)
		rt.levelFixed = true
	}
	rt.Logger = slog.New(slog.NewTextHandler(c.errOut, &slog.HandlerOptions{Level: rt.level}))
	return rt
}
