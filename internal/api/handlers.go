package api

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Benny93/ocelgraph-go/internal/graph"
	"github.com/Benny93/ocelgraph-go/internal/ingestion"
	"github.com/Benny93/ocelgraph-go/internal/ocel"
	"github.com/Benny93/ocelgraph-go/internal/storage"
	"github.com/Benny93/ocelgraph-go/internal/subgraph"
)

type loadRequest struct {
	Name string `json:"name" binding:"required"`

	// Stored loads from the log store instead of the data directory.
	Stored bool `json:"stored"`
}

type statusResponse struct {
	Generation string           `json:"generation"`
	BuiltAt    time.Time        `json:"built_at"`
	Stats      graph.BuildStats `json:"stats"`
}

type eventsForObjectsRequest struct {
	EventTypes []string `json:"eventTypes"`
	ObjectIDs  []string `json:"objectIds"`
}

type eventsForObjectsResponse struct {
	EventIDs []string `json:"eventIds"`
}

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error()}
}

// statusFor maps load and query errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrNoIndexLoaded),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, storage.ErrLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrInvalidName),
		errors.Is(err, ocel.ErrUnsupportedFormat),
		errors.Is(err, ocel.ErrMalformedLog),
		errors.Is(err, graph.ErrUnknownIdentifier),
		errors.Is(err, subgraph.ErrRootNotFound),
		errors.Is(err, subgraph.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
	}
	c.JSON(code, errorBody(err))
}

func (s *Server) handleLoad(c *gin.Context) {
	var req loadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	var (
		res *ingestion.LoadResult
		err error
	)
	if req.Stored {
		res, err = s.loader.LoadStored(c.Request.Context(), req.Name)
	} else {
		res, err = s.loader.LoadFile(c.Request.Context(), req.Name)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res.Info)
}

func (s *Server) handleInfo(c *gin.Context) {
	info, err := s.handle.Info()
	if err != nil {
		// The frontend treats a null body as "nothing loaded".
		c.JSON(http.StatusNotFound, nil)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleStatus(c *gin.Context) {
	linked, err := s.handle.Snapshot()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		Generation: linked.Generation(),
		BuiltAt:    linked.BuiltAt(),
		Stats:      linked.Stats(),
	})
}

func (s *Server) handleUpload(format ocel.Format) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := c.Request.Body
		if s.opts.MaxUploadBytes > 0 {
			body = http.MaxBytesReader(c.Writer, body, s.opts.MaxUploadBytes)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, errorBody(ingestion.ErrTooLarge))
				return
			}
			c.JSON(http.StatusBadRequest, errorBody(err))
			return
		}

		res, err := s.loader.LoadBytes(c.Request.Context(), c.Query("name"), format, data)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res.Info)
	}
}

func (s *Server) handleAvailable(c *gin.Context) {
	entries, err := ingestion.Discover(s.loader.DataDir)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ingestion.AvailableNames(entries))
}

func (s *Server) handleStored(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, []storage.StoredLog{})
		return
	}
	logs, err := s.store.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) handleGraph(c *gin.Context) {
	var opts subgraph.Options
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	linked, err := s.handle.Snapshot()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	g, err := s.cache.Extract(linked, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) handleEventsForObjects(c *gin.Context) {
	var req eventsForObjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}

	resp := eventsForObjectsResponse{EventIDs: []string{}}
	err := s.handle.With(func(l *graph.LinkedLog) error {
		objects, err := l.ResolveObjects(req.ObjectIDs)
		if err != nil {
			return err
		}
		events, err := l.EventsOfTypesAssociatedWithObjects(req.EventTypes, objects)
		if err != nil {
			return err
		}
		for _, e := range events {
			ev, err := l.Event(e)
			if err != nil {
				return err
			}
			resp.EventIDs = append(resp.EventIDs, ev.ID)
		}
		return nil
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleObjectRelations(c *gin.Context) {
	summary, err := s.handle.ObjectRelationSummary()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
