package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sacha-rebbouh/angeldesk-sub005/internal/agents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/deals"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/documents"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/orchestrator"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/quota"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/sessions"
	"github.com/sacha-rebbouh/angeldesk-sub005/internal/shared/server/middleware"
)

const testUserID = "guest:tester"

func newTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := agents.NewRegistry(agents.Catalog(&fakeCompletion{})...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	dealsRepo := deals.NewMemoryRepo()
	deal := deals.Deal{ID: "d1", UserID: testUserID, CompanyName: "Acme Robotics"}
	if err := dealsRepo.Create(context.Background(), deal); err != nil {
		t.Fatalf("create deal: %v", err)
	}
	docSvc := &documents.Service{Repo: documents.NewMemoryRepo(), Deals: dealsRepo}
	store := &sessions.Store{Repo: sessions.NewMemoryRepo(), Docs: docSvc}
	scheduler := &orchestrator.Scheduler{Registry: registry}
	svc := NewService(store, registry, scheduler, dealsRepo, docSvc, quota.NewService())

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth("dev"))
	NewHandler(svc).RegisterRoutes(api)

	return router, &testEnv{svc: svc, store: store, dealID: deal.ID}
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Guest-Id", "tester")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestStartRunReturnsAccepted(t *testing.T) {
	router, env := newTestRouter(t)

	resp := doRequest(router, http.MethodPost, "/api/v1/deals/d1/analyses", `{"mode": "SCREEN"}`)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", resp.Code, resp.Body.String())
	}

	var body SessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID == "" || body.Status != sessions.StatusPending {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Tiers) == 0 {
		t.Fatal("expected resolved tiers in response")
	}

	waitForTerminal(t, env.store, body.SessionID)
}

func TestStartRunInvalidMode(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(router, http.MethodPost, "/api/v1/deals/d1/analyses", `{"mode": "DEEP"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Code)
	}
}

func TestStartRunUnknownDeal(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(router, http.MethodPost, "/api/v1/deals/missing/analyses", `{"mode": "SCREEN"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestStartRunQuotaExhausted(t *testing.T) {
	router, env := newTestRouter(t)

	if _, err := env.svc.Quota.Consume(context.Background(), testUserID, 20); err != nil {
		t.Fatalf("prefill quota: %v", err)
	}

	resp := doRequest(router, http.MethodPost, "/api/v1/deals/d1/analyses", `{"mode": "SCREEN"}`)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "limit_reached") {
		t.Fatalf("expected limit_reached code: %s", resp.Body.String())
	}
}

func TestGetRunNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/api/v1/analyses/missing", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
}

func TestGetRunReturnsSession(t *testing.T) {
	router, env := newTestRouter(t)

	session, err := env.svc.Run(context.Background(), testUserID, "d1", agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	waitForTerminal(t, env.store, session.ID)

	resp := doRequest(router, http.MethodGet, "/api/v1/analyses/"+session.ID, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var body SessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != sessions.StatusCompleted || body.HeadlineScore == nil {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestListRuns(t *testing.T) {
	router, env := newTestRouter(t)

	session, err := env.svc.Run(context.Background(), testUserID, "d1", agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	waitForTerminal(t, env.store, session.ID)

	resp := doRequest(router, http.MethodGet, "/api/v1/deals/d1/analyses", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var list []SessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != session.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCancelFinishedRunConflicts(t *testing.T) {
	router, env := newTestRouter(t)

	session, err := env.svc.Run(context.Background(), testUserID, "d1", agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	waitForTerminal(t, env.store, session.ID)

	resp := doRequest(router, http.MethodPost, "/api/v1/analyses/"+session.ID+"/cancel", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", resp.Code, resp.Body.String())
	}
}

func TestCancelRunningRunAccepted(t *testing.T) {
	router, env := newTestRouter(t)

	block := make(chan struct{})
	registry, err := agents.NewRegistry(agents.Catalog(&fakeCompletion{block: block})...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	env.svc.Registry = registry
	env.svc.Scheduler = &orchestrator.Scheduler{Registry: registry}

	session, err := env.svc.Run(context.Background(), testUserID, "d1", agents.ModeScreen, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The run is pending until the blocked agents resolve.
	deadline := time.Now().Add(time.Second)
	var resp *httptest.ResponseRecorder
	for time.Now().Before(deadline) {
		resp = doRequest(router, http.MethodPost, "/api/v1/analyses/"+session.ID+"/cancel", "")
		if resp.Code == http.StatusAccepted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "cancelling") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}

	waitForTerminal(t, env.store, session.ID)
}
