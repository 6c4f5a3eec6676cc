package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/ocelgraph-go/internal/graph"
	"github.com/Benny93/ocelgraph-go/internal/ingestion"
	"github.com/Benny93/ocelgraph-go/internal/ocel"
	"github.com/Benny93/ocelgraph-go/internal/storage"
	"github.com/Benny93/ocelgraph-go/internal/subgraph"
)

const orderLogJSON = `{
  "objectTypes": [{"name": "order"}, {"name": "customer"}],
  "eventTypes": [{"name": "place"}, {"name": "ship"}],
  "objects": [
    {"id": "o1", "type": "order", "relationships": [{"objectId": "c1", "qualifier": "placed by"}]},
    {"id": "o2", "type": "order"},
    {"id": "c1", "type": "customer"}
  ],
  "events": [
    {"id": "e1", "type": "place", "time": "2024-01-01T09:00:00Z",
     "relationships": [{"objectId": "o1", "qualifier": "order"}, {"objectId": "o2", "qualifier": "order"}]},
    {"id": "e2", "type": "ship", "time": "2024-01-02T09:00:00Z",
     "relationships": [{"objectId": "o1", "qualifier": "order"}]}
  ]
}`

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	*Server
	store *storage.MemoryStore
}

func setupServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "orders.json"), []byte(orderLogJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "broken.json"), []byte(`{"objects": [`), 0o644))

	store := storage.NewMemoryStore()
	require.NoError(t, store.Initialize("", false))

	logger := slog.New(slog.DiscardHandler)
	handle := graph.NewHandle(graph.BuildOptions{OnWarning: func(graph.Warning) {}})
	loader := ingestion.NewLoader(dataDir, handle, store)
	loader.Logger = logger

	cache, err := subgraph.NewCache(16)
	require.NoError(t, err)

	return &testServer{
		Server: NewServer(handle, loader, store, cache, logger, opts),
		store:  store,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func (s *testServer) load(t *testing.T) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/ocel/load", loadRequest{Name: "orders.json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestServer_Welcome(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})

	w := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome")
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, false, body["loaded"])
}

func TestServer_Info(t *testing.T) {
	t.Parallel()

	t.Run("NothingLoaded", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})

		w := s.do(t, http.MethodGet, "/ocel/info", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "null", w.Body.String())
	})

	t.Run("Loaded", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})
		s.load(t)

		w := s.do(t, http.MethodGet, "/ocel/info", nil)
		require.Equal(t, http.StatusOK, w.Code)
		info := decode[ocel.Info](t, w)
		assert.Equal(t, 3, info.NumObjects)
		assert.Equal(t, 2, info.NumEvents)
		assert.Equal(t, []string{"e1", "e2"}, info.EventIDs)
	})
}

func TestServer_Load(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  any
		want int
	}{
		{"OK", loadRequest{Name: "orders.json"}, http.StatusOK},
		{"Missing", loadRequest{Name: "nope.json"}, http.StatusNotFound},
		{"Traversal", loadRequest{Name: "../etc/passwd.json"}, http.StatusBadRequest},
		{"Unsupported", loadRequest{Name: "orders.csv"}, http.StatusBadRequest},
		{"Malformed", loadRequest{Name: "broken.json"}, http.StatusBadRequest},
		{"StoredMissing", loadRequest{Name: "orders.json", Stored: true}, http.StatusNotFound},
		{"NoName", map[string]string{}, http.StatusBadRequest},
		{"BadJSON", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := setupServer(t, Options{})
			w := s.do(t, http.MethodPost, "/ocel/load", tt.req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestServer_FailedLoadKeepsIndex(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})
	s.load(t)

	w := s.do(t, http.MethodPost, "/ocel/load", loadRequest{Name: "broken.json"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/ocel/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Status(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})

	w := s.do(t, http.MethodGet, "/ocel/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.load(t)
	w = s.do(t, http.MethodGet, "/ocel/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[statusResponse](t, w)
	assert.NotEmpty(t, status.Generation)
	assert.Equal(t, 3, status.Stats.Objects)
	assert.Equal(t, 4, status.Stats.Relations)
}

func TestServer_Upload(t *testing.T) {
	t.Parallel()

	t.Run("NamedIsStored", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})

		w := s.do(t, http.MethodPost, "/ocel/upload-json?name=uploaded.json", orderLogJSON)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 3, decode[ocel.Info](t, w).NumObjects)

		w = s.do(t, http.MethodGet, "/ocel/stored", nil)
		require.Equal(t, http.StatusOK, w.Code)
		stored := decode[[]storage.StoredLog](t, w)
		require.Len(t, stored, 1)
		assert.Equal(t, "uploaded.json", stored[0].Name)
		assert.Equal(t, ocel.FormatJSON, stored[0].Format)

		w = s.do(t, http.MethodPost, "/ocel/load", loadRequest{Name: "uploaded.json", Stored: true})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("AnonymousNotStored", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})

		w := s.do(t, http.MethodPost, "/ocel/upload-json", orderLogJSON)
		require.Equal(t, http.StatusOK, w.Code)

		logs, err := s.store.List(t.Context())
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("WrongFormat", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})

		w := s.do(t, http.MethodPost, "/ocel/upload-xml", orderLogJSON)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, s.handle.Loaded())
	})

	t.Run("TooLarge", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{MaxUploadBytes: 16})

		w := s.do(t, http.MethodPost, "/ocel/upload-json", orderLogJSON)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestServer_Available(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})

	w := s.do(t, http.MethodGet, "/ocel/available", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"broken.json", "orders.json"}, decode[[]string](t, w))
}

func TestServer_StoredWithoutStore(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})
	s.Server.store = nil

	w := s.do(t, http.MethodGet, "/ocel/stored", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestServer_Graph(t *testing.T) {
	t.Parallel()

	t.Run("NothingLoaded", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})
		w := s.do(t, http.MethodPost, "/ocel/graph", subgraph.Options{Root: "o1", RootIsObject: true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("OneHop", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})
		s.load(t)

		w := s.do(t, http.MethodPost, "/ocel/graph", subgraph.Options{Root: "o1", RootIsObject: true, MaxDistance: 1})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		g := decode[subgraph.Graph](t, w)

		ids := make([]string, 0, len(g.Nodes))
		for _, n := range g.Nodes {
			ids = append(ids, n.ID)
		}
		assert.ElementsMatch(t, []string{"o1", "c1", "e1", "e2"}, ids)
		assert.Contains(t, g.Links, subgraph.Link{Source: "e1", Target: "o1", Qualifier: "order"})
		assert.Contains(t, g.Links, subgraph.Link{Source: "o1", Target: "c1", Qualifier: "placed by"})
	})

	t.Run("UnknownRoot", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})
		s.load(t)

		w := s.do(t, http.MethodPost, "/ocel/graph", subgraph.Options{Root: "zz", RootIsObject: true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("NegativeDistance", func(t *testing.T) {
		t.Parallel()
		s := setupServer(t, Options{})
		s.load(t)

		w := s.do(t, http.MethodPost, "/ocel/graph", subgraph.Options{Root: "o1", RootIsObject: true, MaxDistance: -1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_EventsForObjects(t *testing.T) {
	t.Parallel()

	s := setupServer(t, Options{})
	w := s.do(t, http.MethodPost, "/ocel/events-for-objects", eventsForObjectsRequest{EventTypes: []string{"place"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.load(t)

	tests := []struct {
		name    string
		req     eventsForObjectsRequest
		want    []string
		wantErr int
	}{
		{"BothOrders", eventsForObjectsRequest{[]string{"place", "ship"}, []string{"o1", "o2"}}, []string{"e1"}, 0},
		{"OneOrder", eventsForObjectsRequest{[]string{"place", "ship"}, []string{"o1"}}, []string{"e1", "e2"}, 0},
		{"TypeFilter", eventsForObjectsRequest{[]string{"ship"}, []string{"o1"}}, []string{"e2"}, 0},
		{"NoObjects", eventsForObjectsRequest{[]string{"place", "ship"}, nil}, []string{"e1", "e2"}, 0},
		{"NoTypes", eventsForObjectsRequest{nil, []string{"o1"}}, []string{}, 0},
		{"UnknownObject", eventsForObjectsRequest{[]string{"place"}, []string{"zz"}}, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := s.do(t, http.MethodPost, "/ocel/events-for-objects", tt.req)
			if tt.wantErr != 0 {
				assert.Equal(t, tt.wantErr, w.Code)
				return
			}
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, decode[eventsForObjectsResponse](t, w).EventIDs)
		})
	}
}

func TestServer_ObjectRelations(t *testing.T) {
	t.Parallel()
	s := setupServer(t, Options{})

	w := s.do(t, http.MethodGet, "/ocel/object-relations", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.load(t)
	w = s.do(t, http.MethodGet, "/ocel/object-relations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[map[string][]graph.QualifierAndType](t, w)
	assert.Equal(t, []graph.QualifierAndType{{Qualifier: "placed by", ObjectType: "customer"}}, summary["order"])
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	w := setupServer(t, Options{}).do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = setupServer(t, Options{MetricsEnabled: true}).do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CORS(t *testing.T) {
	t.Parallel()

	preflight := func(s *testServer, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/ocel/info", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w
	}

	t.Run("AnyOrigin", func(t *testing.T) {
		t.Parallel()
		w := preflight(setupServer(t, Options{CORSOrigins: []string{"*"}}), "http://example.com")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("ListedOrigin", func(t *testing.T) {
		t.Parallel()
		w := preflight(setupServer(t, Options{CORSOrigins: []string{"http://localhost:5173"}}), "http://localhost:5173")
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("OtherOrigin", func(t *testing.T) {
		t.Parallel()
		w := preflight(setupServer(t, Options{CORSOrigins: []string{"http://localhost:5173"}}), "http://evil.example")
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
