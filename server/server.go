// Package server exposes the pipeline and its history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	cfg "github.com/crycare/cry-pipeline/config"
	"github.com/crycare/cry-pipeline/history"
	"github.com/crycare/cry-pipeline/metrics"
	"github.com/crycare/cry-pipeline/orchestrator"
)

// Predictor runs the pipeline on a saved file.
type Predictor interface {
	ProcessAndPredict(ctx context.Context, path string) orchestrator.Result
}

type Server struct {
	cfg      *cfg.Root
	pipeline Predictor
	history  *history.Store
	log      logrus.FieldLogger

	metrics      *metrics.Metrics
	metricsPage  http.Handler
	modelVersion string
}

type Option func(*Server)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics records request metrics into m and serves page on /metrics.
func WithMetrics(m *metrics.Metrics, page http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPage = page
	}
}

// WithModelVersion sets the version reported by /healthz.
func WithModelVersion(v string) Option {
	return func(s *Server) { s.modelVersion = v }
}

func New(c *cfg.Root, p Predictor, h *history.Store, opts ...Option) *Server {
	if c == nil {
		c = cfg.Default()
	}
	s := &Server{cfg: c, pipeline: p, history: h, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("DELETE /history", s.handleClearHistory)
	mux.HandleFunc("DELETE /history/{id}", s.handleDeleteHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsPage != nil {
		mux.Handle("GET /metrics", s.metricsPage)
	}
	route := func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}
	return metrics.Middleware(s.metrics, s.log, route)(mux)
}

// Run serves on cfg.Server.Addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if limit := s.cfg.Server.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	file, header, err := r.FormFile("file")
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", tooLarge.Limit))
		case errors.Is(err, http.ErrMissingFile) && r.MultipartForm != nil && len(r.MultipartForm.Value["file"]) > 0:
			writeError(w, http.StatusBadRequest, "No selected file")
		default:
			writeError(w, http.StatusBadRequest, "No file part in the request")
		}
		return
	}
	defer file.Close()
	if strings.TrimSpace(header.Filename) == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}
	filename := filepath.Base(header.Filename)
	log := s.log.WithField("filename", filename)

	path, err := s.save(file, filename)
	if err != nil {
		log.WithError(err).Error("save upload")
		writeError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("failed to remove upload")
		}
	}()

	res := s.pipeline.ProcessAndPredict(r.Context(), path)
	if !res.OK() {
		status := http.StatusInternalServerError
		if res.Err != nil && res.Err.Kind.ClientError() {
			status = http.StatusBadRequest
		}
		log.WithField("status", status).Warn("prediction failed")
		writeJSON(w, status, res)
		return
	}

	if s.history != nil {
		if _, err := s.history.Append(filename, *res.Prediction); err != nil {
			log.WithError(err).Error("failed to save history")
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// save copies the upload to a collision-free name in the uploads directory,
// keeping the extension so the decoder can pick a backend.
func (s *Server) save(src io.Reader, filename string) (string, error) {
	dir := s.cfg.Paths.Uploads
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	entries, err := s.history.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving history: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.history == nil {
		writeError(w, http.StatusNotFound, "History file not found")
		return
	}
	err := s.history.Delete(id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("History item with ID %s not found", id))
	case err != nil:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete history item: %v", err))
	default:
		writeJSON(w, http.StatusOK, status{Success: true, Message: fmt.Sprintf("History item %s deleted successfully", id)})
	}
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		if err := s.history.DeleteAll(); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete all history: %v", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, status{Success: true, Message: "All history items deleted successfully"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "models": s.modelVersion})
}

type status struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
