package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Benny93/fedgraph/internal/builder"
	"github.com/Benny93/fedgraph/internal/ctxlog"
	"github.com/Benny93/fedgraph/internal/diagnostics"
	"github.com/Benny93/fedgraph/internal/federation"
	"github.com/Benny93/fedgraph/internal/graph"
	"github.com/Benny93/fedgraph/internal/hierarchy"
	"github.com/Benny93/fedgraph/internal/ingestion"
	"github.com/Benny93/fedgraph/internal/parsers"
	"github.com/Benny93/fedgraph/internal/storage"
)

// errBadUpload marks client mistakes in an upload request.
var errBadUpload = errors.New("bad upload")

type uploadResponse struct {
	Fed    string `json:"fed"`
	ID     string `json:"id"`
	Stores int    `json:"stores"`
}

type diagnosticsResponse struct {
	BuildID     string                   `json:"buildId"`
	Mode        builder.Mode             `json:"mode"`
	Counts      map[string]int           `json:"counts"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"federations": s.store.FederationCount(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadUpload, err))
		return
	}
	file, header, err := r.FormFile("fed")
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: missing form field \"fed\"", errBadUpload))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadUpload, err))
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = ingestion.FederationName(header.Filename)
	}

	opts := s.opts.Import
	fed, err := ingestion.DecodeBytes(ctx, data, name, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := builder.Build(fed.Stores, builder.ModeTypes, opts.Build); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.SaveFederation(ctx, fed); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctxlog.FromContext(ctx).Info("federation uploaded",
		"federation", fed.Name,
		"stores", len(fed.Stores),
		"bytes", len(data))

	writeJSON(w, http.StatusCreated, uploadResponse{
		Fed:    fed.Name,
		ID:     fed.ID,
		Stores: len(fed.Stores),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListFederations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []federation.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.GetSummary(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	classes, err := graph.ParseEdgeClasses(r.URL.Query()["edges"]...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.build(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result.Document(classes...))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	result, err := s.build(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	counts := make(map[string]int)
	for _, d := range result.Diagnostics {
		counts[string(d.Severity)]++
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{
		BuildID:     result.BuildID,
		Mode:        result.Mode,
		Counts:      counts,
		Diagnostics: result.Diagnostics,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.DeleteFederation(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctxlog.FromContext(r.Context()).Info("federation deleted", "federation", name)
	w.WriteHeader(http.StatusNoContent)
}

// build loads the named federation and builds the graph for the mode query
// parameter.
func (s *Server) build(r *http.Request) (*builder.Result, error) {
	mode, err := builder.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return nil, err
	}
	fed, err := s.store.LoadFederation(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		return nil, err
	}

	opts := s.opts.Import.Build
	opts.Logger = ctxlog.FromContext(r.Context())
	return builder.Build(fed.Stores, mode, opts)
}

// statusFor maps an error to the HTTP status reported to the client.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, hierarchy.ErrHierarchyCycle):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadUpload),
		errors.Is(err, builder.ErrUnknownMode),
		errors.Is(err, graph.ErrUnknownEdgeClass),
		errors.Is(err, parsers.ErrMalformedStore),
		errors.Is(err, ingestion.ErrInvalidArchive),
		errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := ctxlog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}

	body := map[string]any{"error": err.Error()}
	var cycle *hierarchy.CycleError
	if errors.As(err, &cycle) {
		body["types"] = cycle.Types
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
