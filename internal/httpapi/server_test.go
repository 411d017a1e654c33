package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"premortem/internal/evidence"
	"premortem/internal/graveyard"
	"premortem/internal/premortem"
	"premortem/internal/reportstore"
)

// deadSource fails every query, forcing the pipeline onto its deterministic
// fallback paths.
type deadSource struct{}

func (deadSource) Query(ctx context.Context, systemPrompt, userPrompt string, opts evidence.Options) (*evidence.Response, error) {
	return nil, errors.New("upstream unavailable")
}

func newTestHandler(t *testing.T, gy *graveyard.Client) (http.Handler, *reportstore.Store) {
	t.Helper()
	store, err := reportstore.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewServer(premortem.NewPipeline(deadSource{}, nil), store, gy), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, payload
}

func TestAnalyzeRejectsEmptyIdea(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec, payload := doJSON(t, h, http.MethodPost, "/v1/analyze", `{"idea":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "idea text is required" {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestAnalyzeRejectsInvalidJSON(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec, payload := doJSON(t, h, http.MethodPost, "/v1/analyze", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["error"] != "invalid JSON body" {
		t.Fatalf("error = %v", payload["error"])
	}
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/v1/analyze", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAnalyzeQuickPreview(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	for _, body := range []string{
		`{"idea":"A marketplace for tutors","quick_preview":true}`,
		`{"idea":"A marketplace for tutors","quickPreview":true}`,
	} {
		rec, payload := doJSON(t, h, http.MethodPost, "/v1/analyze", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d for %s", rec.Code, body)
		}
		dec, ok := payload["decomposition"].(map[string]any)
		if !ok {
			t.Fatalf("payload = %v", payload)
		}
		if dec["business_model"] != "Marketplace with transaction fees" {
			t.Fatalf("decomposition = %v", dec)
		}
		if _, hasReport := payload["report"]; hasReport {
			t.Fatalf("quick preview should not include a report: %v", payload)
		}
	}
}

func TestAnalyzeFullRunPersistsReport(t *testing.T) {
	h, store := newTestHandler(t, nil)

	rec, payload := doJSON(t, h, http.MethodPost, "/v1/analyze", `{"idea":"A monthly subscription tool for freelancers to send invoices"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if payload["success"] != true {
		t.Fatalf("success = %v", payload["success"])
	}
	report, ok := payload["report"].(map[string]any)
	if !ok {
		t.Fatalf("payload = %v", payload)
	}
	if report["status"] != "complete" {
		t.Fatalf("report status = %v", report["status"])
	}

	id, _ := report["id"].(string)
	saved, err := store.Get(id)
	if err != nil {
		t.Fatalf("report %q not persisted: %v", id, err)
	}
	if saved.Status != premortem.StatusComplete {
		t.Fatalf("saved status = %s", saved.Status)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec, payload := doJSON(t, h, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["service"] != "premortem-analysis" || payload["version"] != "1.0.0" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestReportsWithoutStore(t *testing.T) {
	h := NewServer(premortem.NewPipeline(deadSource{}, nil), nil, nil)

	rec, _ := doJSON(t, h, http.MethodGet, "/v1/reports", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	rec, _ = doJSON(t, h, http.MethodGet, "/v1/reports/some-id", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReportListAndFetch(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	_, payload := doJSON(t, h, http.MethodPost, "/v1/analyze", `{"idea":"A subscription box for gardeners"}`)
	report := payload["report"].(map[string]any)
	id := report["id"].(string)

	rec, listPayload := doJSON(t, h, http.MethodGet, "/v1/reports?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	reports, ok := listPayload["reports"].([]any)
	if !ok || len(reports) != 1 {
		t.Fatalf("reports = %v", listPayload["reports"])
	}

	rec, fetchPayload := doJSON(t, h, http.MethodGet, "/v1/reports/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	fetched := fetchPayload["report"].(map[string]any)
	if fetched["id"] != id {
		t.Fatalf("fetched id = %v", fetched["id"])
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/reports/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d for unknown id", rec.Code)
	}
}

func TestRerun(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	_, payload := doJSON(t, h, http.MethodPost, "/v1/analyze", `{"idea":"A subscription box for gardeners"}`)
	report := payload["report"].(map[string]any)
	id := report["id"].(string)

	rec, rerunPayload := doJSON(t, h, http.MethodPost, "/v1/reports/"+id+"/rerun", `{"from_stage":"scoring"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	updated := rerunPayload["report"].(map[string]any)
	if updated["version"] != float64(2) {
		t.Fatalf("version = %v", updated["version"])
	}

	rec, badPayload := doJSON(t, h, http.MethodPost, "/v1/reports/"+id+"/rerun", `{"from_stage":"nonsense"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(badPayload["error"].(string), "unknown stage") {
		t.Fatalf("error = %v", badPayload["error"])
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/v1/reports/missing/rerun", `{"from_stage":"retrieval"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGraveyardWithoutClient(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec, _ := doJSON(t, h, http.MethodGet, "/v1/graveyard", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGraveyardListAndSearch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"gy-1","name":"PetCo","description":"pet supplies","category":"ecommerce","money_burned_raw":1000000},
			{"id":"gy-2","name":"FinBot","description":"robo advisor","category":"fintech","sector":"payments","money_burned_raw":250000}
		]`))
	}))
	defer upstream.Close()

	gy := graveyard.NewClient(graveyard.Config{BaseURL: upstream.URL, APIKey: "k"})
	h, _ := newTestHandler(t, gy)

	rec, payload := doJSON(t, h, http.MethodGet, "/v1/graveyard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	startups := payload["startups"].([]any)
	if len(startups) != 2 {
		t.Fatalf("startups = %v", startups)
	}
	if payload["total_burned"] != float64(1250000) {
		t.Fatalf("total_burned = %v", payload["total_burned"])
	}
	categories := payload["categories"].([]any)
	if len(categories) != 3 {
		t.Fatalf("categories = %v", categories)
	}

	rec, filtered := doJSON(t, h, http.MethodGet, "/v1/graveyard?q=fin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	matches := filtered["startups"].([]any)
	if len(matches) != 1 {
		t.Fatalf("filtered startups = %v", matches)
	}
	if matches[0].(map[string]any)["name"] != "FinBot" {
		t.Fatalf("match = %v", matches[0])
	}
}
