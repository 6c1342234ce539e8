package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/middleware"
)

const handlerTestUser = "guest:tester"

func newHandlerRouter(t *testing.T, docs *fakeDocs) (*gin.Engine, *Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dealsRepo := deals.NewMemoryRepo()
	if err := dealsRepo.Create(context.Background(), deals.Deal{
		ID: "d1", UserID: handlerTestUser, CompanyName: "Acme Robotics",
	}); err != nil {
		t.Fatalf("create deal: %v", err)
	}

	store := newTestStore(docs)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth("dev"))
	NewHandler(store, dealsRepo).RegisterRoutes(api)
	return router, store
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Guest-Id", "tester")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func persistVersion(t *testing.T, store *Store, id string, score *float64) Version {
	t.Helper()
	s := finishedSession(id, "d1", score)
	if err := store.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("create: %v", err)
	}
	v, err := store.Persist(context.Background(), s)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	return v
}

func TestLatestEndpoint(t *testing.T) {
	router, store := newHandlerRouter(t, &fakeDocs{ids: []string{"doc-1"}})
	persistVersion(t, store, "s1", scoreOf(60))
	persistVersion(t, store, "s2", scoreOf(75))

	resp := get(router, "/api/v1/deals/d1/analysis/latest")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var v Version
	if err := json.Unmarshal(resp.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Number != 2 || v.Session.ID != "s2" {
		t.Fatalf("unexpected version: %+v", v)
	}
}

func TestLatestEndpointNoAnalysis(t *testing.T) {
	router, _ := newHandlerRouter(t, &fakeDocs{})

	resp := get(router, "/api/v1/deals/d1/analysis/latest")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "no_analysis") {
		t.Fatalf("expected no_analysis code: %s", resp.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	router, store := newHandlerRouter(t, &fakeDocs{})
	persistVersion(t, store, "s1", scoreOf(60))

	resp := get(router, "/api/v1/deals/d1/analysis/versions/1")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}

	if resp := get(router, "/api/v1/deals/d1/analysis/versions/9"); resp.Code != http.StatusNotFound {
		t.Fatalf("missing version status = %d, want 404", resp.Code)
	}
	if resp := get(router, "/api/v1/deals/d1/analysis/versions/zero"); resp.Code != http.StatusBadRequest {
		t.Fatalf("invalid number status = %d, want 400", resp.Code)
	}
}

func TestStalenessEndpoint(t *testing.T) {
	docs := &fakeDocs{ids: []string{"doc-1"}}
	router, store := newHandlerRouter(t, docs)
	persistVersion(t, store, "s1", scoreOf(60))

	docs.ids = append(docs.ids, "doc-2")
	resp := get(router, "/api/v1/deals/d1/analysis/staleness")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var st Staleness
	if err := json.Unmarshal(resp.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.IsStale || st.NewDocumentCount != 1 {
		t.Fatalf("unexpected staleness: %+v", st)
	}
}

func TestDeltaEndpoint(t *testing.T) {
	router, store := newHandlerRouter(t, &fakeDocs{})
	persistVersion(t, store, "s1", scoreOf(50))
	persistVersion(t, store, "s2", scoreOf(72))

	resp := get(router, "/api/v1/deals/d1/analysis/delta?from=1&to=2")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var d Delta
	if err := json.Unmarshal(resp.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.HeadlineDelta == nil || *d.HeadlineDelta != 22 {
		t.Fatalf("delta = %v, want +22", d.HeadlineDelta)
	}

	// Defaults to comparing the latest pair.
	resp = get(router, "/api/v1/deals/d1/analysis/delta")
	if resp.Code != http.StatusOK {
		t.Fatalf("default delta status = %d", resp.Code)
	}

	if resp := get(router, "/api/v1/deals/d1/analysis/delta?from=0"); resp.Code != http.StatusBadRequest {
		t.Fatalf("from=0 status = %d, want 400", resp.Code)
	}
	if resp := get(router, "/api/v1/deals/d1/analysis/delta?from=1&to=9"); resp.Code != http.StatusNotFound {
		t.Fatalf("missing to status = %d, want 404", resp.Code)
	}
}

func TestVersionEndpointsRequireOwnedDeal(t *testing.T) {
	router, _ := newHandlerRouter(t, &fakeDocs{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals/d1/analysis/latest", nil)
	req.Header.Set("X-Guest-Id", "intruder")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign deal", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "deal not found") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestStalenessEndpointAfterNewVersion(t *testing.T) {
	docs := &fakeDocs{ids: []string{"doc-1"}}
	router, store := newHandlerRouter(t, docs)
	persistVersion(t, store, "s1", scoreOf(60))

	docs.ids = append(docs.ids, "doc-2")
	persistVersion(t, store, "s2", scoreOf(64))

	resp := get(router, "/api/v1/deals/d1/analysis/staleness")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	var st Staleness
	if err := json.Unmarshal(resp.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.IsStale || st.LatestVersion != 2 {
		t.Fatalf("unexpected staleness: %+v", st)
	}
}
