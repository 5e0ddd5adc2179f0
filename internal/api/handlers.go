package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/store"
	"github.com/sells-group/profile-finder/internal/tabular"
)

// CredentialHeader carries a per-request SerpAPI key.
const CredentialHeader = "X-SerpAPI-Key"

// Handlers implements the HTTP routes.
type Handlers struct {
	deps Deps
}

// StartRequest is the JSON body of POST /api/batches.
type StartRequest struct {
	People     []model.PersonQuery `json:"people"`
	Thresholds *model.Thresholds   `json:"thresholds,omitempty"`
	Credential string              `json:"serpapi_key,omitempty"`
	Limit      int                 `json:"limit,omitempty"`
}

// StartResponse is returned when a batch is accepted.
type StartResponse struct {
	BatchID    string           `json:"batch_id"`
	Total      int              `json:"total"`
	Thresholds model.Thresholds `json:"thresholds"`
}

// ResultsResponse wraps the current result set.
type ResultsResponse struct {
	BatchID   string              `json:"batch_id,omitempty"`
	Finalized bool                `json:"finalized"`
	Results   []model.MatchResult `json:"results"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StartBatch accepts either a JSON StartRequest or a multipart upload with
// a "file" field (CSV or XLSX) plus optional cosine_threshold,
// fuzzy_threshold, limit and serpapi_key form fields.
func (h *Handlers) StartBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes)

	var (
		req StartRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = h.parseUpload(r)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
	}
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	th := h.deps.Defaults
	if req.Thresholds != nil {
		if req.Thresholds.Cosine != 0 {
			th.Cosine = req.Thresholds.Cosine
		}
		if req.Thresholds.Fuzzy != 0 {
			th.Fuzzy = req.Thresholds.Fuzzy
		}
	}
	th = th.OrDefault()

	credential := strings.TrimSpace(r.Header.Get(CredentialHeader))
	if credential == "" {
		credential = strings.TrimSpace(req.Credential)
	}

	id, err := h.deps.Engine.Start(r.Context(), engine.Batch{
		People:     req.People,
		Thresholds: th,
		Credential: credential,
		Limit:      req.Limit,
		MaxResults: h.deps.MaxResults,
	})
	switch {
	case errors.Is(err, engine.ErrBatchActive):
		WriteError(w, r, http.StatusConflict, "batch_active", "a batch is still running; stop or restart it, then wait for in-flight lookups to finish")
		return
	case errors.Is(err, engine.ErrEmptyBatch):
		WriteError(w, r, http.StatusBadRequest, "empty_batch", "no people to resolve")
		return
	case err != nil:
		WriteError(w, r, http.StatusBadRequest, "invalid_batch", err.Error())
		return
	}

	total := len(req.People)
	if req.Limit > 0 && total > req.Limit {
		total = req.Limit
	}
	WriteJSON(w, http.StatusAccepted, StartResponse{BatchID: id, Total: total, Thresholds: th})
}

func (h *Handlers) parseUpload(r *http.Request) (StartRequest, error) {
	var req StartRequest
	if err := r.ParseMultipartForm(h.deps.MaxUploadBytes); err != nil {
		return req, fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return req, fmt.Errorf("file field: %w", err)
	}
	defer file.Close() //nolint:errcheck

	format, err := tabular.FormatFromName(header.Filename)
	if err != nil {
		return req, err
	}
	req.People, err = tabular.ReadPeople(file, format)
	if err != nil {
		return req, err
	}

	cos, err := formFloat(r, "cosine_threshold")
	if err != nil {
		return req, err
	}
	fuzzy, err := formFloat(r, "fuzzy_threshold")
	if err != nil {
		return req, err
	}
	if cos != 0 || fuzzy != 0 {
		req.Thresholds = &model.Thresholds{Cosine: cos, Fuzzy: fuzzy}
	}
	if v := strings.TrimSpace(r.FormValue("limit")); v != "" {
		req.Limit, err = strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("limit: %w", err)
		}
	}
	req.Credential = r.FormValue("serpapi_key")
	return req, nil
}

func formFloat(r *http.Request, name string) (float64, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func (h *Handlers) StopBatch(w http.ResponseWriter, r *http.Request) {
	n := h.deps.Engine.Stop()
	WriteJSON(w, http.StatusOK, map[string]any{
		"cancelled": n,
		"progress":  h.deps.Engine.Progress(),
	})
}

// RestartBatch clears the current batch. The next start without
// thresholds uses the defaults again.
func (h *Handlers) RestartBatch(w http.ResponseWriter, r *http.Request) {
	h.deps.Engine.Restart()
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "restarted",
		"thresholds": h.deps.Defaults.OrDefault(),
	})
}

func (h *Handlers) Progress(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.deps.Engine.Progress())
}

func (h *Handlers) Results(w http.ResponseWriter, r *http.Request) {
	p := h.deps.Engine.Progress()
	results := h.deps.Engine.Results()
	if results == nil {
		results = []model.MatchResult{}
	}
	WriteJSON(w, http.StatusOK, ResultsResponse{
		BatchID:   p.BatchID,
		Finalized: p.Finalized,
		Results:   results,
	})
}

func (h *Handlers) ResultsCSV(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, tabular.FormatCSV, "text/csv; charset=utf-8")
}

func (h *Handlers) ResultsXLSX(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, tabular.FormatXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, format tabular.Format, contentType string) {
	results := h.deps.Engine.Results()
	if len(results) == 0 {
		WriteError(w, r, http.StatusNotFound, "no_results", "no results to download")
		return
	}
	name := "profile_results." + string(format)
	if id := h.deps.Engine.Progress().BatchID; id != "" {
		name = fmt.Sprintf("profile_results_%s.%s", id, format)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := tabular.WriteResults(w, format, results); err != nil {
		zap.L().Error("api: write download", zap.String("format", string(format)), zap.Error(err))
	}
}

func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	if h.deps.Usage == nil {
		WriteError(w, r, http.StatusNotImplemented, "no_usage", "usage metering is not configured")
		return
	}
	WriteJSON(w, http.StatusOK, h.deps.Usage())
}

func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	filter := store.BatchFilter{Status: model.BatchStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	batches, err := h.deps.Store.ListBatches(r.Context(), filter)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if batches == nil {
		batches = []model.BatchRecord{}
	}
	WriteJSON(w, http.StatusOK, batches)
}

func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	rec, err := h.deps.Store.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (h *Handlers) BatchResults(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.deps.Store.GetBatch(r.Context(), id); err != nil {
		h.storeError(w, r, err)
		return
	}
	results, err := h.deps.Store.ListResults(r.Context(), id)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if results == nil {
		results = []model.MatchResult{}
	}
	WriteJSON(w, http.StatusOK, ResultsResponse{BatchID: id, Finalized: true, Results: results})
}

func (h *Handlers) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if h.deps.Store == nil {
		WriteError(w, r, http.StatusNotImplemented, "no_store", "persistence is not configured")
		return false
	}
	return true
}

func (h *Handlers) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	zap.L().Error("api: store query failed", zap.Error(err))
	WriteError(w, r, http.StatusInternalServerError, "store_error", "failed to read from store")
}
