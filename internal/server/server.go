package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"skymatch/internal/identify"
)

// Server exposes the identification pipeline over HTTP.
type Server struct {
	addr      string
	service   *identify.Service
	hub       *Hub
	maxUpload int64
	log       *slog.Logger
	server    *http.Server
}

// NewServer creates a server around svc. Request bodies are capped at
// maxUploadMB megabytes.
func NewServer(addr string, svc *identify.Service, maxUploadMB int64, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:      addr,
		service:   svc,
		hub:       NewHub(log),
		maxUpload: maxUploadMB << 20,
		log:       log,
	}
}

// Hub returns the stream hub; its Publish method fits identify.Service.Notify.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger)
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/constellations", s.handleConstellations).Methods("GET")
	api.HandleFunc("/identify", s.handleIdentify).Methods("POST")
	api.HandleFunc("/overlay", s.handleOverlay).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/history/{id}", s.handleHistoryEntry).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/stream", s.hub.handleStream).Methods("GET")
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogger assigns a request id and logs each request once it is done.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)

		// The stream endpoint needs the raw writer for hijacking.
		if r.URL.Path == "/api/stream" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
