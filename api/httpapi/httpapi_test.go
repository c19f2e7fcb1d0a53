package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mem "scuolakit/adapters/memory"
	"scuolakit/core"
	"scuolakit/engine"
	"scuolakit/leaderboard"
)

func newTestService(t *testing.T) (*engine.Service, *mem.Store) {
	t.Helper()
	storage := mem.New()
	storage.PutUser(core.User{ID: "alice", DisplayName: "Alice"})
	bus := engine.NewEventBus(engine.DispatchSync)
	t.Cleanup(bus.Close)
	return engine.NewService(storage, storage, storage, storage, bus), storage
}

func TestAwardActionSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/xp?action=material_uploaded", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var award engine.Award
	_ = json.Unmarshal(rec.Body.Bytes(), &award)
	if award.Points != 20 || award.NewXP != 20 {
		t.Fatalf("expected 20 points, got %+v", award)
	}
}

func TestAwardRawPoints(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/xp?points=150&reason=bonus", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var award engine.Award
	_ = json.Unmarshal(rec.Body.Bytes(), &award)
	if award.NewLevel != 2 || !award.LeveledUp {
		t.Fatalf("expected level up to 2, got %+v", award)
	}
}

func TestAwardUnknownAction(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/xp?action=page_viewed", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAwardUserNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/ghost/xp?action=like_given", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQuizCompletion(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/quiz?percentage=85", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var award engine.Award
	_ = json.Unmarshal(rec.Body.Bytes(), &award)
	if award.Points != 850 {
		t.Fatalf("expected 850 points for 85%%, got %+v", award)
	}
}

func TestQuizPercentageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	for _, target := range []string{
		"/api/users/alice/quiz?percentage=bad",
		"/api/users/alice/quiz?percentage=101",
		"/api/users/alice/xp?points=bad",
	} {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestEvaluateBadges(t *testing.T) {
	svc, storage := newTestService(t)
	storage.RecordActivity(context.Background(), "alice", core.ReqCommentsPosted, 3)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/alice/badges/evaluate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ev engine.Evaluation
	_ = json.Unmarshal(rec.Body.Bytes(), &ev)
	found := false
	for _, b := range ev.Granted {
		if b == "voce-del-forum" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected voce-del-forum in granted, got %+v", ev.Granted)
	}
}

func TestGetUserAndProgress(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var prof engine.Profile
	_ = json.Unmarshal(rec.Body.Bytes(), &prof)
	if prof.User.ID != "alice" {
		t.Fatalf("expected alice, got %+v", prof.User)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice/progress", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
	var prog engine.Progress
	_ = json.Unmarshal(rec2.Body.Bytes(), &prog)
	if prog.Total == 0 || prog.Earned != 0 {
		t.Fatalf("unexpected progress %+v", prog)
	}
}

func TestGetUserNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/users/ghost", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBadgeCatalogRoute(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/badges", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Badges []core.Badge `json:"badges"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Badges) == 0 {
		t.Fatal("expected a non-empty catalog")
	}
}

func TestLeaderboardRoute(t *testing.T) {
	svc, _ := newTestService(t)
	board := leaderboard.NewSkipList()
	board.Update("alice", 300)
	board.Update("bob", 100)
	handler := NewMux(svc, nil, board, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Entries []leaderboard.Entry `json:"entries"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Entries) != 1 || resp.Entries[0].User != "alice" {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}
}

func TestHealthz(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{PathPrefix: "/api"})

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{
		PathPrefix:      "/api",
		APIKeys:         []string{"secret"},
		AllowCORSOrigin: "*",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestRateLimit(t *testing.T) {
	svc, _ := newTestService(t)
	handler := NewMux(svc, nil, nil, Options{
		PathPrefix:       "/api",
		APIKeys:          []string{"k"},
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	req1 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req1.Header.Set("X-API-Key", "k")
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req2.Header.Set("X-API-Key", "k")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
}
