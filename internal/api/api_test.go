package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-finder/internal/cost"
	"github.com/sells-group/profile-finder/internal/engine"
	"github.com/sells-group/profile-finder/internal/model"
	"github.com/sells-group/profile-finder/internal/store"
)

type fakeEngine struct {
	mu        sync.Mutex
	started   []engine.Batch
	startErr  error
	stopped   int
	restarted int
	progress  engine.Progress
	results   []model.MatchResult
}

func (f *fakeEngine) Start(_ context.Context, b engine.Batch) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, b)
	return "batch-1", nil
}

func (f *fakeEngine) Stop() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return 3
}

func (f *fakeEngine) Restart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted++
}

func (f *fakeEngine) Progress() engine.Progress { return f.progress }

func (f *fakeEngine) Results() []model.MatchResult { return f.results }

type fakeStore struct {
	batches map[string]model.BatchRecord
	results map[string][]model.MatchResult
	err     error
}

func (s *fakeStore) GetBatch(_ context.Context, id string) (*model.BatchRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	b, ok := s.batches[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "batch %s", id)
	}
	return &b, nil
}

func (s *fakeStore) ListBatches(_ context.Context, f store.BatchFilter) ([]model.BatchRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.BatchRecord
	for _, b := range s.batches {
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) ListResults(_ context.Context, id string) ([]model.MatchResult, error) {
	return s.results[id], nil
}

func sampleResults() []model.MatchResult {
	income := 120000
	m := model.NewMatch(model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "MIT"},
		"Alice Smith - Engineer", "https://www.linkedin.com/in/alicesmith", 88, "Boston")
	m.EstimatedIncome = &income
	return []model.MatchResult{
		m,
		model.NewNoMatch(model.PersonQuery{FirstName: "Bob", LastName: "Jones", Affiliation: "MIT"}),
	}
}

func newTestRouter(eng *fakeEngine, st BatchReader) http.Handler {
	d := Deps{Engine: eng, Defaults: model.DefaultThresholds()}
	if st != nil {
		d.Store = st
	}
	return NewRouter(d)
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(&fakeEngine{}, nil), http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStartBatch_JSON(t *testing.T) {
	eng := &fakeEngine{}
	body := `{"people":[{"first_name":"Alice","last_name":"Smith","affiliation":"MIT"},
		{"first_name":"Bob","last_name":"Jones","affiliation":"MIT"}],
		"thresholds":{"cosine_threshold":0.5},"limit":1,"serpapi_key":"body-key"}`

	rec := do(t, newTestRouter(eng, nil), http.MethodPost, "/api/batches", []byte(body),
		map[string]string{"Content-Type": "application/json"})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "batch-1", resp.BatchID)
	assert.Equal(t, 1, resp.Total)
	assert.InDelta(t, 0.5, resp.Thresholds.Cosine, 0.001)
	assert.InDelta(t, model.DefaultFuzzyThreshold, resp.Thresholds.Fuzzy, 0.001)

	require.Len(t, eng.started, 1)
	b := eng.started[0]
	assert.Len(t, b.People, 2)
	assert.Equal(t, 1, b.Limit)
	assert.Equal(t, "body-key", b.Credential)
}

func TestStartBatch_HeaderCredentialWins(t *testing.T) {
	eng := &fakeEngine{}
	body := `{"people":[{"first_name":"A","last_name":"B","affiliation":"C"}],"serpapi_key":"body-key"}`

	rec := do(t, newTestRouter(eng, nil), http.MethodPost, "/api/batches", []byte(body),
		map[string]string{CredentialHeader: "header-key"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, eng.started, 1)
	assert.Equal(t, "header-key", eng.started[0].Credential)
	assert.Equal(t, model.DefaultThresholds(), eng.started[0].Thresholds)
}

func TestStartBatch_Upload(t *testing.T) {
	eng := &fakeEngine{}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "people.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("First Name,Last Name,University\nAlice,Smith,MIT\nBob,Jones,Harvard\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("fuzzy_threshold", "0.8"))
	require.NoError(t, mw.WriteField("limit", "5"))
	require.NoError(t, mw.Close())

	rec := do(t, newTestRouter(eng, nil), http.MethodPost, "/api/batches", buf.Bytes(),
		map[string]string{"Content-Type": mw.FormDataContentType()})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, eng.started, 1)
	b := eng.started[0]
	require.Len(t, b.People, 2)
	assert.Equal(t, "Alice", b.People[0].FirstName)
	assert.Equal(t, "Harvard", b.People[1].Affiliation)
	assert.InDelta(t, 0.8, b.Thresholds.Fuzzy, 0.001)
	assert.InDelta(t, model.DefaultCosineThreshold, b.Thresholds.Cosine, 0.001)
	assert.Equal(t, 5, b.Limit)
}

func TestStartBatch_UploadBadExtension(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "people.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	rec := do(t, newTestRouter(&fakeEngine{}, nil), http.MethodPost, "/api/batches", buf.Bytes(),
		map[string]string{"Content-Type": mw.FormDataContentType()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Error.Code)
}

func TestStartBatch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		startErr error
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", nil, `{"people":`, http.StatusBadRequest, "invalid_request"},
		{"active", engine.ErrBatchActive, `{"people":[]}`, http.StatusConflict, "batch_active"},
		{"empty", engine.ErrEmptyBatch, `{"people":[]}`, http.StatusBadRequest, "empty_batch"},
		{"thresholds", eris.New("model: cosine threshold 0.10 outside [0.30, 0.90]"), `{"people":[]}`, http.StatusBadRequest, "invalid_batch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{startErr: tt.startErr}
			rec := do(t, newTestRouter(eng, nil), http.MethodPost, "/api/batches", []byte(tt.body), nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tt.wantErr, e.Error.Code)
			assert.NotEmpty(t, e.Error.RequestID)
		})
	}
}

func TestStopAndRestart(t *testing.T) {
	eng := &fakeEngine{progress: engine.Progress{BatchID: "batch-1", Stopped: true}}
	h := newTestRouter(eng, nil)

	rec := do(t, h, http.MethodPost, "/api/batches/stop", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stop struct {
		Cancelled int             `json:"cancelled"`
		Progress  engine.Progress `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stop))
	assert.Equal(t, 3, stop.Cancelled)
	assert.True(t, stop.Progress.Stopped)

	rec = do(t, h, http.MethodPost, "/api/batches/restart", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"restarted"`)
	assert.Equal(t, 1, eng.stopped)
	assert.Equal(t, 1, eng.restarted)
}

func TestProgress(t *testing.T) {
	eng := &fakeEngine{progress: engine.Progress{BatchID: "b", Completed: 2, Total: 4, Percent: 50, Active: true}}
	rec := do(t, newTestRouter(eng, nil), http.MethodGet, "/api/progress", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var p engine.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 4, p.Total)
	assert.True(t, p.Active)
}

func TestResults(t *testing.T) {
	eng := &fakeEngine{
		progress: engine.Progress{BatchID: "b", Finalized: true},
		results:  sampleResults(),
	}
	rec := do(t, newTestRouter(eng, nil), http.MethodGet, "/api/results", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Finalized)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, model.StatusMatchFound, resp.Results[0].Status)
}

func TestResults_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestRouter(&fakeEngine{}, nil), http.MethodGet, "/api/results", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestResultsCSV(t *testing.T) {
	eng := &fakeEngine{progress: engine.Progress{BatchID: "b1"}, results: sampleResults()}
	rec := do(t, newTestRouter(eng, nil), http.MethodGet, "/api/results.csv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "profile_results_b1.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "First Name,Last Name"))
	assert.Contains(t, lines[1], `"$120,000"`)
}

func TestResultsXLSX(t *testing.T) {
	eng := &fakeEngine{results: sampleResults()}
	rec := do(t, newTestRouter(eng, nil), http.MethodGet, "/api/results.xlsx", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "profile_results.xlsx")
	// XLSX is a zip archive.
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestResultsCSV_NoResults(t *testing.T) {
	rec := do(t, newTestRouter(&fakeEngine{}, nil), http.MethodGet, "/api/results.csv", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_results", decodeError(t, rec).Error.Code)
}

func TestStoreRoutes(t *testing.T) {
	st := &fakeStore{
		batches: map[string]model.BatchRecord{
			"b1": {ID: "b1", Status: model.BatchStatusComplete, Total: 2},
			"b2": {ID: "b2", Status: model.BatchStatusStopped, Total: 5},
		},
		results: map[string][]model.MatchResult{"b1": sampleResults()},
	}
	h := newTestRouter(&fakeEngine{}, st)

	rec := do(t, h, http.MethodGet, "/api/batches?status=complete", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var batches []model.BatchRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batches))
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)

	rec = do(t, h, http.MethodGet, "/api/batches/b2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"stopped"`)

	rec = do(t, h, http.MethodGet, "/api/batches/b1/results", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 2)

	rec = do(t, h, http.MethodGet, "/api/batches/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/batches?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreRoutes_Failure(t *testing.T) {
	h := newTestRouter(&fakeEngine{}, &fakeStore{err: eris.New("disk gone")})
	rec := do(t, h, http.MethodGet, "/api/batches", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "store_error", decodeError(t, rec).Error.Code)
}

func TestStoreRoutes_NotConfigured(t *testing.T) {
	rec := do(t, newTestRouter(&fakeEngine{}, nil), http.MethodGet, "/api/batches", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(Deps{Engine: &fakeEngine{}, CORSOrigins: []string{"https://app.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/progress", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUsage(t *testing.T) {
	rec := do(t, newTestRouter(&fakeEngine{}, nil), http.MethodGet, "/api/usage", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "no_usage", decodeError(t, rec).Error.Code)

	h := NewRouter(Deps{Engine: &fakeEngine{}, Usage: func() cost.Report {
		return cost.Report{
			Searches: []cost.SearchUsage{{Provider: "serpapi", Requests: 4, CostUSD: 0.06}},
			Models:   []cost.ModelUsage{},
			TotalUSD: 0.06,
		}
	}})
	rec = do(t, h, http.MethodGet, "/api/usage", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got cost.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4, got.TotalRequests())
	assert.InDelta(t, 0.06, got.TotalUSD, 0.0001)
}
