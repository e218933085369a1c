package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ForkIt369/ragpipe/internal/index"
	"github.com/ForkIt369/ragpipe/internal/metrics"
	"github.com/ForkIt369/ragpipe/internal/models"
	"github.com/ForkIt369/ragpipe/internal/service"
	"github.com/ForkIt369/ragpipe/internal/store"
)

// maxDocumentSize caps uploaded document bodies at 32 MiB.
const maxDocumentSize = 32 << 20

type handler struct {
	docs   *service.DocumentService
	search *service.SearchService
	jobs   *service.JobManager
	store  *store.Store
	stats  *metrics.Collector
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// searchHandler handles GET /api/search?q=&k=&alpha=&document_id=.
func (h *handler) searchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := service.SearchOptions{
		Query:      q.Get("q"),
		Alpha:      -1,
		DocumentID: q.Get("document_id"),
	}
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		opts.K = k
	}
	if raw := q.Get("alpha"); raw != "" {
		alpha, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "alpha must be a number")
			return
		}
		opts.Alpha = alpha
	}

	results, err := h.search.Search(r.Context(), opts)
	if err != nil {
		if errors.Is(err, index.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// ingestDocument handles POST /api/documents. The raw document is the
// request body; title and content type come from query params or headers.
func (h *handler) ingestDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "empty document body")
		return
	}

	contentType := r.URL.Query().Get("content_type")
	if contentType == "" {
		contentType = r.Header.Get("Content-Type")
	}

	doc := service.NewDocument(r.URL.Query().Get("title"), contentType, raw)
	job := h.docs.ProcessAsync(doc, raw)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document": doc,
		"job":      job,
	})
}

// getDocument handles GET /api/documents/{documentID}.
func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentID")

	var doc models.Document
	if err := h.store.Get(store.CollectionDocuments, id, &doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// getJob handles GET /api/jobs/{documentID}: the latest job for a document.
func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	job, ok := h.jobs.Get(documentID)
	if !ok {
		writeError(w, http.StatusNotFound, "no job for document")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// listJobs handles GET /api/jobs.
func (h *handler) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.jobs.List()})
}

// getStats handles GET /api/stats.
func (h *handler) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
