// Package server exposes a grid filter session over HTTP. Clients read the
// store's fields, records and filter, edit column filters and follow changes
// on a websocket event stream.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arthur-debert/nanogrid/nanogrid/chooser"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/gridfilter"
	"github.com/arthur-debert/nanogrid/nanogrid/store"
	"github.com/arthur-debert/nanogrid/types"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// ErrStoreRequired is returned by New when Config.Store is nil
var ErrStoreRequired = errors.New("server requires a store")

// Config wires a server to a store and the models filtering it
type Config struct {
	Store *store.Store
	// Grid edits column filters; one is created over Store when nil
	Grid *gridfilter.Model
	// Chooser serves /api/suggest; the route answers 404 when nil
	Chooser *chooser.Model
	Logger  *slog.Logger
}

// Server is an http.Handler serving one filtered store
type Server struct {
	store   *store.Store
	grid    *gridfilter.Model
	chooser *chooser.Model
	ownGrid bool
	logger  *slog.Logger
	router  chi.Router
}

// New builds the route tree
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	s := &Server{
		store:   cfg.Store,
		grid:    cfg.Grid,
		chooser: cfg.Chooser,
		logger:  cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.grid == nil {
		grid, err := gridfilter.New(gridfilter.Config{Bind: cfg.Store, Logger: s.logger})
		if err != nil {
			return nil, err
		}
		s.grid = grid
		s.ownGrid = true
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/fields", s.handleFields)
		r.Get("/records", s.handleRecords)
		r.Get("/filter", s.handleGetFilter)
		r.Put("/filter", s.handleSetFilter)
		r.Get("/suggest", s.handleSuggest)
		r.Route("/columns/{field}", func(r chi.Router) {
			r.Get("/values", s.handleColumnValues)
			r.Put("/filter", s.handleSetColumnFilter)
			r.Delete("/filter", s.handleClearColumnFilter)
		})
		r.Get("/ws", s.handleStream)
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the grid model if the server created it
func (s *Server) Close() {
	if s.ownGrid {
		s.grid.Destroy()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// FieldInfo describes a store field and its column filter
type FieldInfo struct {
	types.FieldConfig
	FilterType types.FilterType `json:"filterType"`
	Ops        []filter.Op      `json:"ops,omitempty"`
}

// RecordInfo is the wire form of a record
type RecordInfo struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parentId,omitempty"`
	Data     map[string]any `json:"data"`
}

// RecordsPage is a window over the filtered records
type RecordsPage struct {
	Total       int          `json:"total"`
	Offset      int          `json:"offset"`
	LastUpdated int64        `json:"lastUpdated"`
	Records     []RecordInfo `json:"records"`
}

// ColumnValues lists the candidate values of a column
type ColumnValues struct {
	Field      string          `json:"field"`
	Values     []any           `json:"values"`
	ValueCount int             `json:"valueCount"`
	Filter     json.RawMessage `json:"filter"`
}

func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fieldInfos())
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	writeJSON(w, http.StatusOK, s.recordsPage(offset, limit))
}

func (s *Server) fieldInfos() []FieldInfo {
	fields := s.store.Fields()
	out := make([]FieldInfo, len(fields))
	for i, f := range fields {
		out[i] = FieldInfo{FieldConfig: f.Config(), FilterType: f.FilterType()}
		if spec, err := s.grid.FieldSpec(f.Name); err == nil {
			out[i].Ops = spec.Ops()
		}
	}
	return out
}

func (s *Server) recordsPage(offset, limit int) RecordsPage {
	records := s.store.Records()
	page := RecordsPage{
		Total:       len(records),
		Offset:      offset,
		LastUpdated: s.store.LastUpdated(),
		Records:     []RecordInfo{},
	}
	if offset < len(records) {
		end := min(offset+limit, len(records))
		page.Records = toRecordInfos(records[offset:end])
	}
	return page
}

func (s *Server) handleGetFilter(w http.ResponseWriter, _ *http.Request) {
	writeFilter(w, s.store.Filter())
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	f, ok := readFilter(w, r)
	if !ok {
		return
	}
	if err := s.store.SetFilter(f); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}
	writeFilter(w, s.store.Filter())
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.chooser == nil {
		writeError(w, http.StatusNotFound, "NO_CHOOSER", "suggestions are not enabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	opts := s.chooser.Suggest(r.URL.Query().Get("q"), limit)
	if opts == nil {
		opts = []chooser.Option{}
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleColumnValues(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.fieldSpec(w, r)
	if !ok {
		return
	}
	spec.LoadValues()
	values := spec.Values()
	if values == nil {
		values = []any{}
	}
	data, err := filter.Marshal(s.columnFilter(spec.Field()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ColumnValues{
		Field:      spec.Field(),
		Values:     values,
		ValueCount: spec.ValueCount(),
		Filter:     data,
	})
}

func (s *Server) handleSetColumnFilter(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.fieldSpec(w, r)
	if !ok {
		return
	}
	f, ok := readFilter(w, r)
	if !ok {
		return
	}
	for _, leaf := range filter.Flatten(f) {
		ff, isField := leaf.(*filter.FieldFilter)
		if !isField || ff.Field != spec.Field() {
			writeError(w, http.StatusBadRequest, "INVALID_FILTER",
				"column filter may only reference field "+spec.Field())
			return
		}
	}
	if err := s.grid.SetColumnFilters(spec.Field(), f); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}
	writeFilter(w, s.store.Filter())
}

func (s *Server) handleClearColumnFilter(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.fieldSpec(w, r)
	if !ok {
		return
	}
	if err := s.grid.SetColumnFilters(spec.Field(), nil); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return
	}
	writeFilter(w, s.store.Filter())
}

// columnFilter combines the column's field filters, nil when it has none
func (s *Server) columnFilter(field string) filter.Filter {
	if c := s.grid.ColumnCompoundFilter(field); c != nil {
		return c
	}
	leaves := s.grid.ColumnFilters(field)
	children := make([]filter.Filter, len(leaves))
	for i, ff := range leaves {
		children[i] = ff
	}
	return filter.MustCombine(filter.And, children...)
}

func (s *Server) fieldSpec(w http.ResponseWriter, r *http.Request) (*gridfilter.FieldSpec, bool) {
	field := chi.URLParam(r, "field")
	spec, err := s.grid.FieldSpec(field)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_FIELD", err.Error())
		return nil, false
	}
	return spec, true
}

func toRecordInfos(records []*types.Record) []RecordInfo {
	out := make([]RecordInfo, len(records))
	for i, rec := range records {
		out[i] = RecordInfo{ID: rec.ID, ParentID: rec.ParentID, Data: rec.Data}
	}
	return out
}

// parsePagination reads limit and offset query params
func parsePagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, maxPageSize)
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// readFilter decodes a filter body. An empty body or null clears.
func readFilter(w http.ResponseWriter, r *http.Request) (filter.Filter, bool) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return nil, false
	}
	f, err := filter.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FILTER", err.Error())
		return nil, false
	}
	return f, true
}

func writeFilter(w http.ResponseWriter, f filter.Filter) {
	data, err := filter.Marshal(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(data))
}

// writeJSON marshals v as JSON and writes it with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
