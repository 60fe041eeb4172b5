package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

type fakeAssistant struct {
	gotQuery     domain.QueryRequest
	queryResult  domain.QueryResult
	ingestReport domain.IngestReport
	gotDirectory string
	stats        domain.SystemStats
	sources      []domain.SourceInfo
	cleared      []string
	resetErr     error
	resetCalls   int
}

func (f *fakeAssistant) Ingest(_ context.Context, directory string) domain.IngestReport {
	f.gotDirectory = directory
	return f.ingestReport
}

func (f *fakeAssistant) Query(_ context.Context, req domain.QueryRequest) domain.QueryResult {
	f.gotQuery = req
	return f.queryResult
}

func (f *fakeAssistant) Stats(context.Context) domain.SystemStats { return f.stats }

func (f *fakeAssistant) Sources(context.Context) []domain.SourceInfo { return f.sources }

func (f *fakeAssistant) ClearHistory(sessionID string) {
	f.cleared = append(f.cleared, sessionID)
}

func (f *fakeAssistant) Reset(context.Context) error {
	f.resetCalls++
	return f.resetErr
}

type fakeQueue struct {
	published []string
	err       error
}

func (q *fakeQueue) PublishIngestRequested(_ context.Context, directory string) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, directory)
	return nil
}

func (q *fakeQueue) SubscribeIngestRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

type fakeTurns struct {
	turns     []domain.ConversationTurn
	err       error
	deleted   []string
	deleteErr error
}

func (f *fakeTurns) RecentTurns(_ context.Context, _ string, _ int) ([]domain.ConversationTurn, error) {
	return f.turns, f.err
}

func (f *fakeTurns) DeleteSession(_ context.Context, sessionID string) error {
	f.deleted = append(f.deleted, sessionID)
	return f.deleteErr
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestQueryAppliesDefaults(t *testing.T) {
	assistant := &fakeAssistant{
		queryResult: domain.QueryResult{
			Answer:       "25 days",
			SearchMethod: domain.SearchHybrid,
		},
	}
	handler := NewRouter(assistant, Options{}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/query", `{"question":"vacation days?"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	got := assistant.gotQuery
	if !got.UseHybrid || !got.UseReranking || !got.IncludeHistory {
		t.Fatalf("omitted toggles must default on: %+v", got)
	}
	if got.Question != "vacation days?" {
		t.Fatalf("question not forwarded: %q", got.Question)
	}

	var payload domain.QueryResult
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Answer != "25 days" {
		t.Fatalf("unexpected answer: %q", payload.Answer)
	}
}

func TestQueryHonorsExplicitToggles(t *testing.T) {
	assistant := &fakeAssistant{}
	handler := NewRouter(assistant, Options{}).Handler()

	body := `{"question":"q","session_id":"s1","use_hybrid":false,"use_reranking":false,"k":3,"include_history":false}`
	res := doRequest(t, handler, http.MethodPost, "/v1/query", body)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	got := assistant.gotQuery
	if got.UseHybrid || got.UseReranking || got.IncludeHistory {
		t.Fatalf("explicit false toggles must survive: %+v", got)
	}
	if got.TopK != 3 || got.SessionID != "s1" {
		t.Fatalf("request fields not forwarded: %+v", got)
	}
}

func TestQueryRejectsBadInput(t *testing.T) {
	handler := NewRouter(&fakeAssistant{}, Options{}).Handler()

	if res := doRequest(t, handler, http.MethodPost, "/v1/query", "{not json"); res.Code != http.StatusBadRequest {
		t.Fatalf("malformed json expected 400, got %d", res.Code)
	}
	if res := doRequest(t, handler, http.MethodPost, "/v1/query", `{"question":"  "}`); res.Code != http.StatusBadRequest {
		t.Fatalf("blank question expected 400, got %d", res.Code)
	}
	if res := doRequest(t, handler, http.MethodGet, "/v1/query", ""); res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET expected 405, got %d", res.Code)
	}
}

func TestIngestSync(t *testing.T) {
	assistant := &fakeAssistant{
		ingestReport: domain.IngestReport{
			Success: true,
			Message: "Successfully processed 12 chunks",
			Stats:   domain.IngestStats{TotalChunks: 12},
		},
	}
	handler := NewRouter(assistant, Options{}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/ingest", `{"directory":"./docs"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if assistant.gotDirectory != "./docs" {
		t.Fatalf("directory not forwarded: %q", assistant.gotDirectory)
	}

	var report domain.IngestReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Stats.TotalChunks != 12 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestIngestFailureMapsTo422(t *testing.T) {
	assistant := &fakeAssistant{
		ingestReport: domain.IngestReport{Success: false, Message: "No documents found to process"},
	}
	handler := NewRouter(assistant, Options{}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/ingest", `{"directory":"./empty"}`)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("failed ingest expected 422, got %d", res.Code)
	}
}

func TestIngestAsyncEnqueues(t *testing.T) {
	queue := &fakeQueue{}
	handler := NewRouter(&fakeAssistant{}, Options{Queue: queue}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/ingest", `{"directory":"./docs","async":true}`)
	if res.Code != http.StatusAccepted {
		t.Fatalf("async ingest expected 202, got %d", res.Code)
	}
	if len(queue.published) != 1 || queue.published[0] != "./docs" {
		t.Fatalf("job not enqueued: %v", queue.published)
	}
}

func TestIngestAsyncWithoutQueue(t *testing.T) {
	handler := NewRouter(&fakeAssistant{}, Options{}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/ingest", `{"directory":"./docs","async":true}`)
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without a queue, got %d", res.Code)
	}
}

func TestIngestEnqueueFailureUsesErrorMapping(t *testing.T) {
	queue := &fakeQueue{err: domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("down"))}
	handler := NewRouter(&fakeAssistant{}, Options{Queue: queue}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/ingest", `{"directory":"./docs","async":true}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("temporary enqueue failure expected 503, got %d", res.Code)
	}
}

func TestStatsAndSources(t *testing.T) {
	assistant := &fakeAssistant{
		stats: domain.SystemStats{TotalQueries: 7, SuccessfulAnswers: 5},
		sources: []domain.SourceInfo{
			{Name: "handbook.pdf", ChunkCount: 9},
		},
	}
	handler := NewRouter(assistant, Options{}).Handler()

	res := doRequest(t, handler, http.MethodGet, "/v1/stats", "")
	if res.Code != http.StatusOK {
		t.Fatalf("stats expected 200, got %d", res.Code)
	}
	var stats domain.SystemStats
	if err := json.NewDecoder(res.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalQueries != 7 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	res = doRequest(t, handler, http.MethodGet, "/v1/sources", "")
	if res.Code != http.StatusOK {
		t.Fatalf("sources expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "handbook.pdf") {
		t.Fatalf("sources missing from body: %s", res.Body.String())
	}
}

type fakeStore struct {
	saved map[string]string
	err   error
}

func (f *fakeStore) Save(_ context.Context, name string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[name] = string(body)
	return nil
}

func TestUploadDocumentStoresFile(t *testing.T) {
	store := &fakeStore{}
	handler := NewRouter(&fakeAssistant{}, Options{Store: store}).Handler()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "handbook.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("vacation policy")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if store.saved["handbook.txt"] != "vacation policy" {
		t.Fatalf("file not stored: %v", store.saved)
	}
}

func TestUploadDocumentRequiresMultipart(t *testing.T) {
	handler := NewRouter(&fakeAssistant{}, Options{Store: &fakeStore{}}).Handler()

	if res := doRequest(t, handler, http.MethodPost, "/v1/documents", "not multipart"); res.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart body expected 400, got %d", res.Code)
	}

	handlerWithout := NewRouter(&fakeAssistant{}, Options{}).Handler()
	if res := doRequest(t, handlerWithout, http.MethodPost, "/v1/documents", ""); res.Code != http.StatusNotImplemented {
		t.Fatalf("upload without store expected 501, got %d", res.Code)
	}
}

func TestHistoryDeleteClearsSession(t *testing.T) {
	assistant := &fakeAssistant{}
	handler := NewRouter(assistant, Options{}).Handler()

	res := doRequest(t, handler, http.MethodDelete, "/v1/history?session_id=abc", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(assistant.cleared) != 1 || assistant.cleared[0] != "abc" {
		t.Fatalf("session not cleared: %v", assistant.cleared)
	}

	res = doRequest(t, handler, http.MethodDelete, "/v1/history", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if assistant.cleared[1] != "default" {
		t.Fatalf("missing session id must fall back to default: %v", assistant.cleared)
	}
}

func TestHistoryDeleteAlsoDropsPersistedTurns(t *testing.T) {
	assistant := &fakeAssistant{}
	turns := &fakeTurns{}
	handler := NewRouter(assistant, Options{Turns: turns}).Handler()

	res := doRequest(t, handler, http.MethodDelete, "/v1/history?session_id=abc", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(turns.deleted) != 1 || turns.deleted[0] != "abc" {
		t.Fatalf("persisted turns must be deleted with the window: %v", turns.deleted)
	}
	if len(assistant.cleared) != 1 || assistant.cleared[0] != "abc" {
		t.Fatalf("in-memory window must still be cleared: %v", assistant.cleared)
	}
}

func TestHistoryDeleteSurvivesPersistenceFailure(t *testing.T) {
	assistant := &fakeAssistant{}
	turns := &fakeTurns{deleteErr: errors.New("postgres down")}
	handler := NewRouter(assistant, Options{Turns: turns}).Handler()

	res := doRequest(t, handler, http.MethodDelete, "/v1/history", "")
	if res.Code != http.StatusOK {
		t.Fatalf("persistence failure must stay best effort, got %d", res.Code)
	}
	if len(assistant.cleared) != 1 {
		t.Fatalf("in-memory clear must happen regardless: %v", assistant.cleared)
	}
}

func TestHistoryGetReadsPersistedTurns(t *testing.T) {
	turns := &fakeTurns{turns: []domain.ConversationTurn{
		{Question: "first?", Answer: "a", AskedAt: time.Now()},
	}}
	handler := NewRouter(&fakeAssistant{}, Options{Turns: turns}).Handler()

	res := doRequest(t, handler, http.MethodGet, "/v1/history?session_id=abc&limit=10", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "first?") {
		t.Fatalf("turns missing from body: %s", res.Body.String())
	}

	handlerWithout := NewRouter(&fakeAssistant{}, Options{}).Handler()
	res = doRequest(t, handlerWithout, http.MethodGet, "/v1/history", "")
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("history without persistence expected 501, got %d", res.Code)
	}
}

func TestHistoryGetRejectsBadLimit(t *testing.T) {
	handler := NewRouter(&fakeAssistant{}, Options{Turns: &fakeTurns{}}).Handler()

	res := doRequest(t, handler, http.MethodGet, "/v1/history?limit=zero", "")
	if res.Code != http.StatusBadRequest {
		t.Fatalf("bad limit expected 400, got %d", res.Code)
	}
}

func TestResetMapsDomainErrors(t *testing.T) {
	assistant := &fakeAssistant{
		resetErr: domain.WrapError(domain.ErrUnavailable, "reset", errors.New("qdrant down")),
	}
	handler := NewRouter(assistant, Options{}).Handler()

	res := doRequest(t, handler, http.MethodPost, "/v1/reset", "")
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("unavailable reset expected 503, got %d", res.Code)
	}
	if assistant.resetCalls != 1 {
		t.Fatalf("reset not invoked")
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler := NewRouter(&fakeAssistant{}, Options{}).Handler()

	res := doRequest(t, handler, http.MethodGet, "/healthz", "")
	if res.Code != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("request id header must be set")
	}
}
