package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pbaille/hot/internal/classifier"
	"github.com/pbaille/hot/internal/domain"
	"github.com/pbaille/hot/internal/report"
	"github.com/pbaille/hot/internal/review"
	"github.com/pbaille/hot/internal/store"
	"github.com/pbaille/hot/internal/suggest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

// downLibrary fails every library write
type downLibrary struct{ *store.Store }

func (downLibrary) UpsertEntry(context.Context, string, string, domain.Category) (*domain.LibraryEntry, error) {
	return nil, errors.New("connection refused")
}

func setupTestServerWith(t *testing.T, lib func(*store.Store) suggest.Library) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "hot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clf, err := classifier.NewDefault()
	require.NoError(t, err)
	engine, err := suggest.New(lib(st), clf, suggest.Config{LookupTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	svc, err := review.New(st, st, engine, 0.9, zap.NewNop())
	require.NoError(t, err)

	server, err := New(svc, st, zap.NewNop(), nil)
	require.NoError(t, err)
	server.nowFunc = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return server, st
}

func setupTestServer(t *testing.T) (*Server, *store.Store) {
	return setupTestServerWith(t, func(st *store.Store) suggest.Library { return st })
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(HeaderUserID, "ana")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew(t *testing.T) {
	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := New(nil, nil, zap.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, _ := setupTestServer(t)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
	})
}

func TestHandleHealth(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)

	s.health = failingPinger{}
	rec = doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database is locked", decode[HealthResponse](t, rec).Error)
}

func TestSuggestAndConfirm(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/suggest", SuggestRequest{Text: "Firewall update"})
	require.Equal(t, http.StatusOK, rec.Code)
	sg := decode[domain.Suggestion](t, rec)
	assert.Equal(t, domain.CategoryTechnical, sg.Category)
	assert.Equal(t, domain.SourceKeyword, sg.Source)
	assert.False(t, sg.AutoClassifiable)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/confirm", ConfirmRequest{Text: "Firewall update", Category: "o"})
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[domain.LibraryEntry](t, rec)
	assert.Equal(t, domain.CategoryOrganizational, entry.Category)
	assert.Equal(t, 1, entry.ReuseCount)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/suggest", SuggestRequest{Text: "  firewall UPDATE "})
	sg = decode[domain.Suggestion](t, rec)
	assert.Equal(t, domain.CategoryOrganizational, sg.Category)
	assert.Equal(t, domain.SourceExact, sg.Source)
	assert.True(t, sg.AutoClassifiable)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/suggest", SuggestRequest{Text: "   "})
	sg = decode[domain.Suggestion](t, rec)
	assert.Equal(t, domain.CategoryNone, sg.Category)
	assert.Equal(t, suggest.ReasonManualReview, sg.Reason)
}

func TestConfirm_Errors(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/confirm", ConfirmRequest{Text: "Firewall", Category: "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/confirm", ConfirmRequest{Text: "  ", Category: "T"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	down, _ := setupTestServerWith(t, func(st *store.Store) suggest.Library { return downLibrary{st} })
	rec = doRequest(t, down, http.MethodPost, "/api/v1/confirm", ConfirmRequest{Text: "Firewall", Category: "T"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBatchesAndQueue(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/batches", CreateBatchRequest{Text: "Firewall update\nTreinamento anual;xyz"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[CreateBatchResponse](t, rec)
	assert.Equal(t, 3, created.Batch.Count)
	assert.Equal(t, "ana", created.Batch.CreatedBy)
	require.Len(t, created.Items, 3)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/batches", CreateBatchRequest{Text: " ; "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/queue?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queue := decode[struct {
		Items []domain.ItemWithSuggestion `json:"items"`
		Count int                         `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, queue.Count)
	assert.Equal(t, "Firewall update", queue.Items[0].Text)
	assert.Equal(t, domain.CategoryTechnical, queue.Items[0].Suggestion.Category)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/queue?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchFromURL(t *testing.T) {
	s, _ := setupTestServer(t)
	s.fetch = func(_ context.Context, url string) (string, error) {
		if strings.Contains(url, "broken") {
			return "", errors.New("HTTP 500")
		}
		return "MFA obrigatório\nBackup diário", nil
	}

	rec := doRequest(t, s, http.MethodPost, "/api/v1/batches", CreateBatchRequest{URL: "https://intranet/controls"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[CreateBatchResponse](t, rec).Items, 2)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/batches", CreateBatchRequest{URL: "https://broken/controls"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/batches", CreateBatchRequest{URL: "ftp://files"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemLifecycle(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	_, items, err := st.CreateBatch(ctx, []string{"Firewall update", "Medida vaga", "Outra medida", "Descartar"}, "")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/items/"+items[0].ID+"/confirm",
		ConfirmItemRequest{Category: "T", Justification: "network control"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusConfirmed, decode[domain.Item](t, rec).Status)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/items/"+items[1].ID+"/defer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusPendingReview, decode[domain.Item](t, rec).Status)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/items/"+items[2].ID+"/unclassified", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusUnclassified, decode[domain.Item](t, rec).Status)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/items/"+items[3].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/items/missing/confirm", ConfirmItemRequest{Category: "T"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/items/"+items[1].ID+"/confirm", ConfirmItemRequest{Category: "Z"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/items?status=confirmed,unclassified", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[ItemsResponse](t, rec)
	assert.Len(t, listed.Items, 2)
	assert.Equal(t, 20, listed.Limit)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/items?limit=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ItemsResponse](t, rec).Items, 3, "limit=0 lists every item")

	rec = doRequest(t, s, http.MethodGet, "/api/v1/items?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/activity?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	acts := decode[map[string][]domain.Activity](t, rec)["activity"]
	require.Len(t, acts, 4)
	assert.Equal(t, review.ActionItemDeleted, acts[0].Action)
	assert.Equal(t, "ana", acts[0].UserID)
}

func TestAutoClassifyEndpoint(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	_, err := st.UpsertEntry(ctx, "firewall update", "Firewall update", domain.CategoryTechnical)
	require.NoError(t, err)
	_, _, err = st.CreateBatch(ctx, []string{"Firewall Update", "Treinamento"}, "")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/auto-classify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["confirmed"])
}

func TestLibraryEndpoints(t *testing.T) {
	s, st := setupTestServer(t)
	ctx := context.Background()

	fw, err := st.UpsertEntry(ctx, "firewall update", "Firewall update", domain.CategoryTechnical)
	require.NoError(t, err)
	_, err = st.UpsertEntry(ctx, "firewall update", "Firewall update", domain.CategoryTechnical)
	require.NoError(t, err)
	_, err = st.UpsertEntry(ctx, "política de senhas", "Política de senhas", domain.CategoryOrganizational)
	require.NoError(t, err)

	type listing struct {
		Entries []domain.LibraryEntry `json:"entries"`
		Count   int                   `json:"count"`
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/library", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[listing](t, rec)
	require.Equal(t, 2, all.Count)
	assert.Equal(t, "Firewall update", all.Entries[0].Text)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/library?search=senhas&category=O", nil)
	assert.Equal(t, 1, decode[listing](t, rec).Count)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/library?order=random", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/library/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, stats["total"])
	assert.EqualValues(t, 3, stats["total_reuses"])

	rec = doRequest(t, s, http.MethodGet, "/api/v1/library/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Category;Measure;ReuseCount\nTechnical;Firewall update;2\nOrganizational;Política de senhas;1\n", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "hot-library.csv")

	rec = doRequest(t, s, http.MethodGet, "/api/v1/library/export?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Generated: 2024-05-01 09:00")
	assert.Contains(t, rec.Body.String(), "  - Firewall update (reused 2x)")

	rec = doRequest(t, s, http.MethodGet, "/api/v1/library/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/v1/library/"+fw.ID, ReclassifyRequest{Category: "H"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[domain.LibraryEntry](t, rec)
	assert.Equal(t, domain.CategoryHuman, updated.Category)
	assert.Equal(t, 2, updated.ReuseCount)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/library/"+fw.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(t, s, http.MethodDelete, "/api/v1/library/"+fw.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)

	doRequest(t, s, http.MethodPost, "/api/v1/suggest", SuggestRequest{Text: "Firewall update"})

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hot_http_requests_total")
	assert.Contains(t, rec.Body.String(), "hot_engine_suggestions_total")
}

func TestAnalyticsEndpoints(t *testing.T) {
	s, st := setupTestServer(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := now.AddDate(0, 0, -1)
	clock := func() time.Time { return at }
	st.SetClock(clock)
	s.review.SetClock(clock)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/batches", CreateBatchRequest{Text: "Firewall update\nTreinamento anual"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[CreateBatchResponse](t, rec)
	rec = doRequest(t, s, http.MethodPost, "/api/v1/items/"+created.Items[0].ID+"/confirm", ConfirmItemRequest{Category: "T"})
	require.Equal(t, http.StatusOK, rec.Code)
	at = now

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"default period", "/api/v1/analytics", http.StatusOK},
		{"portuguese alias", "/api/v1/analytics?period=semana", http.StatusOK},
		{"unknown period", "/api/v1/analytics?period=decade", http.StatusBadRequest},
		{"temporal", "/api/v1/analytics/temporal?period=week", http.StatusOK},
		{"temporal unknown period", "/api/v1/analytics/temporal?period=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/analytics?period=week", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a := decode[report.Analytics](t, rec)
	assert.Equal(t, report.PeriodWeek, a.Period)
	assert.Equal(t, 2, a.Items.Total)
	assert.Equal(t, 1, a.Items.Confirmed)
	assert.InDelta(t, 50, a.Items.ClassificationRate, 0.001)
	assert.Equal(t, 1, a.Confirmations[domain.CategoryTechnical])
	assert.Equal(t, 1, a.Library.Added)
	assert.Equal(t, 1, a.Efficiency.Manual)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/analytics/temporal?period=dia", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tm := decode[report.Temporal](t, rec)
	assert.Equal(t, report.PeriodDay, tm.Period)
	assert.Equal(t, []report.DailyPoint{
		{Date: "2026-03-09", Created: 2, Classified: 1},
		{Date: "2026-03-10"},
	}, tm.Points)
}
