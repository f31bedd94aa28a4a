// Package api exposes the canonical store's projections over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"sbahn-canon/internal/pipeline"
	"sbahn-canon/internal/query"
	"sbahn-canon/internal/timetable"
)

// Submitter is implemented by pipeline.Runner.
type Submitter interface {
	Submit(ctx context.Context, b timetable.Batch) error
}

type Metrics interface {
	QueryObserve(route string, d time.Duration)
}

type Server struct {
	query   *query.Service
	ingest  Submitter
	metrics Metrics
}

// NewServer wires the handlers. ingest may be nil, which disables
// POST /api/batches.
func NewServer(q *query.Service, ingest Submitter, m Metrics) *Server {
	return &Server{query: q, ingest: ingest, metrics: m}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.observe)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/lines", s.lines).Methods(http.MethodGet)
	api.HandleFunc("/lines/{line}/graph", s.graph).Methods(http.MethodGet)
	api.HandleFunc("/lines/{line}/stations", s.stations).Methods(http.MethodGet)
	api.HandleFunc("/network", s.network).Methods(http.MethodGet)
	api.HandleFunc("/records", s.records).Methods(http.MethodGet)
	api.HandleFunc("/batches", s.submit).Methods(http.MethodPost)
	return router
}

// Serve starts the API server on addr.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("api server error: %v", err)
		}
	}()
	log.Printf("api listening on %s", addr)
	return srv
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if s.metrics == nil {
			return
		}
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.QueryObserve(route, time.Since(start))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	v, err := s.query.Version(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": v})
}

func (s *Server) lines(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.Lines(r.Context())
	respond(w, out, err)
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.Graph(r.Context(), mux.Vars(r)["line"])
	respond(w, out, err)
}

func (s *Server) stations(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.Stations(r.Context(), mux.Vars(r)["line"])
	respond(w, out, err)
}

func (s *Server) network(w http.ResponseWriter, r *http.Request) {
	out, err := s.query.Network(r.Context())
	respond(w, out, err)
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := query.Filter{
		Line:      q.Get("line"),
		TripID:    q.Get("trip"),
		StationID: q.Get("station"),
		Status:    q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		f.Limit = n
	}
	out, err := s.query.Records(r.Context(), f)
	respond(w, out, err)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		writeError(w, http.StatusNotImplemented, errors.New("ingest disabled"))
		return
	}
	var b timetable.Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if err := s.ingest.Submit(r.Context(), b); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": b.ID, "rows": len(b.Rows)})
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		log.Printf("query error: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
