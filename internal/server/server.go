// Package server exposes the bulk upload HTTP surface: archive submission,
// pre-flight validation, job status polling, job listings, and registry
// stats. Handlers stay thin; the orchestrator and registry do the work.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alliancegenome/litupload/internal/archive"
	"github.com/alliancegenome/litupload/internal/config"
	"github.com/alliancegenome/litupload/internal/job"
	"github.com/alliancegenome/litupload/internal/upload"
)

// defaultUser stands in for the authenticated curator when the gateway does
// not forward an identity header. Authentication itself lives upstream.
const defaultUser = "default_user"

// Server hosts the bulk upload HTTP handlers.
type Server struct {
	cfg          *config.Config
	registry     *job.Registry
	orchestrator *upload.Orchestrator
	persist      upload.PersistFunc
	limiter      *rate.Limiter
	background   context.Context
}

// New constructs a Server. persist is invoked once per extracted file by the
// background processing goroutines.
func New(cfg *config.Config, registry *job.Registry, orchestrator *upload.Orchestrator, persist upload.PersistFunc) *Server {
	return &Server{
		cfg:          cfg,
		registry:     registry,
		orchestrator: orchestrator,
		persist:      persist,
		limiter:      rate.NewLimiter(rate.Limit(cfg.UploadRPS), cfg.UploadBurst),
		background:   context.Background(),
	}
}

// Run starts the HTTP server and the job janitor, blocking until the context
// is cancelled. In-flight upload goroutines are cancelled on shutdown; their
// scratch directories are still cleaned up and their jobs marked failed.
func (s *Server) Run(ctx context.Context) error {
	s.background = ctx
	go s.janitor(ctx)

	httpServer := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	log.Printf("bulk upload api listening on %s", s.cfg.Address)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/bulk-upload", s.handleSubmit)
	mux.HandleFunc("/bulk-upload/validate", s.handleValidate)
	mux.HandleFunc("/bulk-upload/jobs", s.handleJobs)
	mux.HandleFunc("/bulk-upload/jobs/", s.handleJobStatus)
	return corsMiddleware(loggingMiddleware(mux))
}

// janitor periodically evicts old terminal jobs from the registry.
func (s *Server) janitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.CleanupOldJobs(s.cfg.JobMaxAge)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, s.registry.GetStats())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		http.Error(w, "too many uploads, slow down", http.StatusTooManyRequests)
		return
	}
	modAbbreviation := r.URL.Query().Get("mod_abbreviation")
	if modAbbreviation == "" {
		http.Error(w, "mod_abbreviation query parameter is required", http.StatusBadRequest)
		return
	}
	userID := r.Header.Get("X-Okta-User")
	if userID == "" {
		userID = defaultUser
	}

	data, archiveName, err := s.readArchive(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report := archive.Validate(data)
	if !report.Valid {
		http.Error(w, "invalid archive format: "+report.Error, http.StatusUnprocessableEntity)
		return
	}
	if report.TotalFiles == 0 {
		http.Error(w, "archive contains no files", http.StatusUnprocessableEntity)
		return
	}

	jobID := s.registry.CreateJob(userID, modAbbreviation, archiveName, 0)
	go s.orchestrator.ProcessUpload(s.background, jobID, data, archiveName, modAbbreviation, s.persist)

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":           jobID,
		"status":           "started",
		"message":          fmt.Sprintf("Bulk upload job started for %s", modAbbreviation),
		"total_files":      report.TotalFiles,
		"main_files":       report.MainFiles,
		"supplement_files": report.SupplementFiles,
		"status_url":       "/bulk-upload/jobs/" + jobID,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, _, err := s.readArchive(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, archive.Validate(data))
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/bulk-upload/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.NotFound(w, r)
		return
	}
	j := s.registry.GetJob(jobID)
	if j == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, j.View())
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	userID := q.Get("user_id")

	var jobs []*job.Job
	switch q.Get("scope") {
	case "active":
		jobs = s.registry.GetActiveJobs(userID, q.Get("mod_abbreviation"))
	default:
		limit := 10
		if v := q.Get("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		jobs = s.registry.GetRecentJobs(userID, limit)
	}

	views := make([]job.View, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, j.View())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// readArchive pulls the "archive" part out of a multipart request body,
// enforcing the configured size limit while streaming.
func (s *Server) readArchive(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxArchiveBytes+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", errors.New("expecting multipart form with an archive part")
	}
	part, err := nextArchivePart(mr)
	if err != nil {
		return nil, "", err
	}
	defer part.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(part, s.cfg.MaxArchiveBytes+1)); err != nil {
		return nil, "", fmt.Errorf("read archive: %w", err)
	}
	if int64(buf.Len()) > s.cfg.MaxArchiveBytes {
		return nil, "", fmt.Errorf("archive exceeds limit (%d bytes)", s.cfg.MaxArchiveBytes)
	}
	name := part.FileName()
	if name == "" {
		name = "archive.unknown"
	}
	return buf.Bytes(), name, nil
}

func nextArchivePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing archive part")
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() == "archive" {
			return part, nil
		}
		part.Close()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Okta-User")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
