// Package server exposes the fix pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/codexagent/codexagent/pkg/pipeline"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing;
// larger image parts spill to disk.
const maxMultipartMemory = 32 << 20

// Pipeline runs one fix request end to end.
type Pipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Server handles fix requests and health checks.
type Server struct {
	pipeline Pipeline
	srv      *http.Server
	mu       sync.Mutex
}

// New creates a server around the given pipeline.
func New(p Pipeline) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	return &Server{pipeline: p}, nil
}

// Start listens on port and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	s.mu.Lock()

	mux := http.NewServeMux()
	mux.HandleFunc("/fix", s.handleFix)
	mux.HandleFunc("/health", s.handleHealth)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listening on port %d: %w", port, err)
	}

	s.srv = &http.Server{
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			// Carry the process logger into request contexts.
			return ctx
		},
	}
	s.mu.Unlock()

	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			clog.ErrorContextf(ctx, "server error: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "serving on port %d", port)

	<-ctx.Done()
	return s.Stop()
}

// Stop shuts the server down, allowing in-flight requests a grace period.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	s.srv = nil
	return nil
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFix accepts a multipart fix request, runs the pipeline, and maps the
// error taxonomy to status codes.
func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)

	defer func() {
		// Unexpected panics become a generic server error rather than a
		// dropped connection.
		if rec := recover(); rec != nil {
			log.Errorf("panic in fix handler: %v", rec)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal agent error"})
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid multipart form: " + err.Error()})
		return
	}

	repoURL := r.FormValue("repo_url")
	description := r.FormValue("bug_description")
	if repoURL == "" || description == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "repo_url and bug_description are required"})
		return
	}

	image, err := readImage(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "reading image: " + err.Error()})
		return
	}

	log.Infof("POST /fix repo=%s", repoURL)

	result, err := s.pipeline.Run(ctx, pipeline.Request{
		RepoURL:     repoURL,
		Description: description,
		Image:       image,
	})
	if err != nil {
		status, msg := mapError(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("agent error: %v", err)
		} else {
			log.Warnf("validation error: %v", err)
		}
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readImage extracts the optional image part. An absent or empty upload
// yields nil bytes.
func readImage(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// mapError translates the pipeline's closed error taxonomy into transport
// status codes. Validation and size-limit failures are the client's fault;
// everything else is a server error.
func mapError(err error) (int, string) {
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case pipeline.KindValidation, pipeline.KindSizeLimit:
			return http.StatusUnprocessableEntity, perr.Error()
		case pipeline.KindExecution, pipeline.KindConfig:
			return http.StatusInternalServerError, perr.Error()
		}
	}
	return http.StatusInternalServerError, "internal agent error"
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
