// Package api serves the loaded log over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Benny93/ocelgraph-go/internal/graph"
	"github.com/Benny93/ocelgraph-go/internal/ingestion"
	"github.com/Benny93/ocelgraph-go/internal/storage"
	"github.com/Benny93/ocelgraph-go/internal/subgraph"
)

const serviceName = "ocelgraph"

// Options configures the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string

	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool

	// MaxUploadBytes limits request bodies of uploads. Zero means unlimited.
	MaxUploadBytes int64
}

// Server wires the handle, loader and caches to gin routes.
type Server struct {
	handle *graph.Handle
	loader *ingestion.Loader
	store  storage.LogStore
	cache  *subgraph.Cache
	logger *slog.Logger
	opts   Options

	router *gin.Engine
}

// NewServer creates a server. store may be nil.
func NewServer(handle *graph.Handle, loader *ingestion.Loader, store storage.LogStore, cache *subgraph.Cache, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		handle: handle,
		loader: loader,
		store:  store,
		cache:  cache,
		logger: logger,
		opts:   opts,
	}
	s.initRouter()
	return s
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) initRouter() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(requestLogger(s.logger))
	r.Use(cors(s.opts.CORSOrigins))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Welcome to the ocelgraph backend!\nHead over to the frontend to use this tool.")
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "loaded": s.handle.Loaded()})
	})
	if s.opts.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	o := r.Group("/ocel")
	{
		o.POST("/load", s.handleLoad)
		o.GET("/info", s.handleInfo)
		o.GET("/status", s.handleStatus)
		o.POST("/upload-json", s.handleUpload("json"))
		o.POST("/upload-xml", s.handleUpload("xml"))
		o.GET("/available", s.handleAvailable)
		o.GET("/stored", s.handleStored)
		o.POST("/graph", s.handleGraph)
		o.POST("/events-for-objects", s.handleEventsForObjects)
		o.GET("/object-relations", s.handleObjectRelations)
	}

	s.router = r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	}
}
