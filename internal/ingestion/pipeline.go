package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/ocelgraph-go/internal/graph"
	"github.com/Benny93/ocelgraph-go/internal/ocel"
	"github.com/Benny93/ocelgraph-go/internal/storage"
)

var tracer = otel.Tracer("ocelgraph.ingestion")

var (
	// ErrInvalidName is returned for log names that are empty or escape the
	// data directory.
	ErrInvalidName = errors.New("invalid log name")

	// ErrTooLarge is returned when a payload exceeds the configured limit.
	ErrTooLarge = errors.New("log too large")
)

// importConcurrency bounds the number of files ImportAll reads at once.
const importConcurrency = 4

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// LoadResult summarizes one load.
type LoadResult struct {
	Name         string
	Format       ocel.Format
	Bytes        int64
	Info         ocel.Info
	Stats        graph.BuildStats
	Generation   string
	DurationSecs float64
}

// Loader reads, decodes and indexes logs, publishing them to a Handle.
//
// A failed load leaves the handle untouched.
type Loader struct {
	// DataDir is the directory LoadFile resolves names against.
	DataDir string

	// Handle receives every successfully built index.
	Handle *graph.Handle

	// Store, if set, receives uploaded payloads and serves LoadStored.
	Store storage.LogStore

	// MaxBytes limits payload size. Zero means unlimited.
	MaxBytes int64

	// Progress, if set, is called at phase boundaries.
	Progress ProgressCallback

	Logger *slog.Logger
}

// NewLoader creates a loader for dataDir publishing to handle.
func NewLoader(dataDir string, handle *graph.Handle, store storage.LogStore) *Loader {
	return &Loader{
		DataDir: dataDir,
		Handle:  handle,
		Store:   store,
		Logger:  slog.Default(),
	}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Loader) progress(phase string, p float64) {
	if l.Progress != nil {
		l.Progress(phase, p)
	}
}

// resolve maps a client-supplied name to a path inside the data directory.
func (l *Loader) resolve(name string) (string, error) {
	name = filepath.FromSlash(strings.TrimSpace(name))
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.DataDir, name), nil
}

func (l *Loader) checkSize(name string, size int64) error {
	if l.MaxBytes > 0 && size > l.MaxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, name, size, l.MaxBytes)
	}
	return nil
}

// LoadFile loads the named file from the data directory and makes it the
// current index.
func (l *Loader) LoadFile(ctx context.Context, name string) (*LoadResult, error) {
	ctx, span := tracer.Start(ctx, "ingestion.LoadFile")
	defer span.End()
	span.SetAttributes(attribute.String("name", name))

	p, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	format, err := ocel.FormatFromPath(p)
	if err != nil {
		return nil, err
	}

	l.progress("Reading", 0.0)
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if err := l.checkSize(name, info.Size()); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	l.progress("Reading", 1.0)

	res, err := l.load(ctx, name, format, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// LoadBytes decodes an uploaded payload and makes it the current index.
// If a store is configured and name is not empty, the payload is stored
// after it decoded successfully.
func (l *Loader) LoadBytes(ctx context.Context, name string, format ocel.Format, data []byte) (*LoadResult, error) {
	ctx, span := tracer.Start(ctx, "ingestion.LoadBytes")
	defer span.End()
	span.SetAttributes(attribute.String("format", string(format)), attribute.Int("bytes", len(data)))

	if err := l.checkSize(name, int64(len(data))); err != nil {
		return nil, err
	}

	res, err := l.load(ctx, name, format, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if l.Store != nil && name != "" {
		if _, err := l.Store.Put(ctx, name, format, data); err != nil {
			// The index is already published.
			l.logger().Warn("storing uploaded log failed", slog.String("name", name), slog.Any("error", err))
		}
	}
	return res, nil
}

// LoadStored loads a log previously written to the store.
func (l *Loader) LoadStored(ctx context.Context, name string) (*LoadResult, error) {
	if l.Store == nil {
		return nil, fmt.Errorf("loading %s: %w", name, storage.ErrNotInitialized)
	}
	meta, data, err := l.Store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, name, meta.Format, data)
}

func (l *Loader) load(ctx context.Context, name string, format ocel.Format, data []byte) (*LoadResult, error) {
	start := time.Now()

	l.progress("Decoding", 0.0)
	log, err := ocel.Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", displayName(name), err)
	}
	l.progress("Decoding", 1.0)

	l.progress("Indexing", 0.0)
	linked := l.Handle.Load(ctx, log)
	l.progress("Indexing", 1.0)

	res := &LoadResult{
		Name:         name,
		Format:       format,
		Bytes:        int64(len(data)),
		Info:         linked.Info(),
		Stats:        linked.Stats(),
		Generation:   linked.Generation(),
		DurationSecs: time.Since(start).Seconds(),
	}

	l.logger().Info("log loaded",
		slog.String("name", displayName(name)),
		slog.String("generation", res.Generation),
		slog.Int("objects", res.Stats.Objects),
		slog.Int("events", res.Stats.Events),
		slog.Int("relations", res.Stats.Relations),
		slog.Int("dropped_references", res.Stats.DroppedReferences),
		slog.Float64("duration_secs", res.DurationSecs),
	)
	return res, nil
}

func displayName(name string) string {
	if name == "" {
		return "upload"
	}
	return name
}

// ImportAll copies the given data-directory files into the store,
// reading up to importConcurrency files at once. Files whose checksum is
// unchanged are still rewritten. It returns the number of files stored.
func (l *Loader) ImportAll(ctx context.Context, entries []FileEntry) (int, error) {
	if l.Store == nil {
		return 0, storage.ErrNotInitialized
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(importConcurrency)

	stored := make([]bool, len(entries))
	for i, entry := range entries {
		g.Go(func() error {
			if err := l.checkSize(entry.Name, entry.Size); err != nil {
				l.logger().Warn("skipping import", slog.String("name", entry.Name), slog.Any("error", err))
				return nil
			}
			data, err := os.ReadFile(entry.Path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", entry.Name, err)
			}
			if _, err := l.Store.Put(ctx, path.Clean(entry.Name), entry.Format, data); err != nil {
				return fmt.Errorf("storing %s: %w", entry.Name, err)
			}
			stored[i] = true
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for _, ok := range stored {
		if ok {
			n++
		}
	}
	return n, err
}
