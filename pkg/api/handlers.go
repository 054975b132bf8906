package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ssargent/freyjadb/pkg/bptree"
	"github.com/ssargent/freyjadb/pkg/index"
)

// Server holds the API server state
type Server struct {
	indexes *index.IndexManager
	config  ServerConfig
	metrics *Metrics
}

// NewServer creates a new API server over an index manager.
func NewServer(indexes *index.IndexManager, config ServerConfig, metrics *Metrics) *Server {
	return &Server{
		indexes: indexes,
		config:  config,
		metrics: metrics,
	}
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Router			/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleInsert godoc
//
//	@Summary		Index a record under a field value
//	@Router			/fields/{field}/{primaryKey} [put]
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	field := chi.URLParam(r, "field")
	primaryKey, ok := s.pathPrimaryKey(w, r)
	if !ok {
		return
	}

	var req InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.RecordDBOperation("insert", false, time.Since(start))
		sendError(w, "Invalid JSON request body", http.StatusBadRequest)
		return
	}

	idx, err := s.indexes.GetOrCreateIndex(field)
	if err != nil {
		s.metrics.RecordDBOperation("insert", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to open index for field %q: %v", field, err), http.StatusInternalServerError)
		return
	}

	if err := idx.Insert(req.Value, primaryKey); err != nil {
		s.metrics.RecordDBOperation("insert", false, time.Since(start))
		status := http.StatusInternalServerError
		if errors.Is(err, bptree.ErrDuplicateKey) {
			status = http.StatusConflict
		}
		sendError(w, fmt.Sprintf("Failed to insert: %v", err), status)
		return
	}

	s.metrics.RecordDBOperation("insert", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "record indexed successfully"})
}

// handleDelete godoc
//
//	@Summary		Remove a record from a field's index
//	@Router			/fields/{field}/{primaryKey} [delete]
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	field := chi.URLParam(r, "field")
	primaryKey, ok := s.pathPrimaryKey(w, r)
	if !ok {
		return
	}

	value, err := parseFieldValue(r.URL.Query().Get("value"), r.URL.Query().Get("type"))
	if err != nil {
		s.metrics.RecordDBOperation("delete", false, time.Since(start))
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	idx, err := s.indexes.GetOrCreateIndex(field)
	if err != nil {
		s.metrics.RecordDBOperation("delete", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to open index for field %q: %v", field, err), http.StatusInternalServerError)
		return
	}

	if deleted := idx.Delete(value, primaryKey); !deleted {
		s.metrics.RecordDBOperation("delete", false, time.Since(start))
		sendError(w, "Record not found", http.StatusNotFound)
		return
	}

	s.metrics.RecordDBOperation("delete", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "record removed successfully"})
}

// handleSearch godoc
//
//	@Summary		Find primary keys with an exact field value match
//	@Router			/fields/{field}/search [get]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	field := chi.URLParam(r, "field")

	value, err := parseFieldValue(r.URL.Query().Get("value"), r.URL.Query().Get("type"))
	if err != nil {
		s.metrics.RecordDBOperation("search", false, time.Since(start))
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	idx, err := s.indexes.GetOrCreateIndex(field)
	if err != nil {
		s.metrics.RecordDBOperation("search", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to open index for field %q: %v", field, err), http.StatusInternalServerError)
		return
	}

	keys, err := idx.Search(value)
	if err != nil {
		s.metrics.RecordDBOperation("search", false, time.Since(start))
		sendError(w, fmt.Sprintf("Search failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDBOperation("search", true, time.Since(start))
	sendSuccess(w, map[string]interface{}{"primary_keys": encodeKeys(keys)})
}

// handleRange godoc
//
//	@Summary		Find primary keys with a field value in [start, end]
//	@Router			/fields/{field}/range [get]
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	field := chi.URLParam(r, "field")
	typeParam := r.URL.Query().Get("type")

	startValue, err := parseFieldValue(r.URL.Query().Get("start"), typeParam)
	if err != nil {
		s.metrics.RecordDBOperation("range", false, time.Since(start))
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	endValue, err := parseFieldValue(r.URL.Query().Get("end"), typeParam)
	if err != nil {
		s.metrics.RecordDBOperation("range", false, time.Since(start))
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	idx, err := s.indexes.GetOrCreateIndex(field)
	if err != nil {
		s.metrics.RecordDBOperation("range", false, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to open index for field %q: %v", field, err), http.StatusInternalServerError)
		return
	}

	keys, err := idx.SearchRange(startValue, endValue)
	if err != nil {
		s.metrics.RecordDBOperation("range", false, time.Since(start))
		sendError(w, fmt.Sprintf("Range search failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDBOperation("range", true, time.Since(start))
	sendSuccess(w, map[string]interface{}{"primary_keys": encodeKeys(keys)})
}

// pathPrimaryKey extracts and URL-unescapes the {primaryKey} path segment,
// writing a 400 response and returning ok=false on failure.
func (s *Server) pathPrimaryKey(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw := chi.URLParam(r, "primaryKey")
	if raw == "" {
		sendError(w, "Primary key is required", http.StatusBadRequest)
		return nil, false
	}
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		sendError(w, "Invalid primary key encoding", http.StatusBadRequest)
		return nil, false
	}
	return []byte(unescaped), true
}

// parseFieldValue converts a query-string value into the Go type
// dynamicFieldCodec expects. kind selects the target type ("int64",
// "float64", "string"); empty defaults to "string".
func parseFieldValue(raw, kind string) (interface{}, error) {
	switch kind {
	case "", "string":
		return raw, nil
	case "int64":
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int64 value %q: %w", raw, err)
		}
		return v, nil
	case "float64":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float64 value %q: %w", raw, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown type %q: want int64, float64, or string", kind)
	}
}

func encodeKeys(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
