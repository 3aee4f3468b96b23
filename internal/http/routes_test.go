package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tetris_together/internal/config"
	"tetris_together/internal/http/handlers"
	"tetris_together/internal/http/middleware"
	"tetris_together/internal/service"
	"tetris_together/internal/ws"
)

func newEngine(t *testing.T, joinLimit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service.InitJWT("routes-secret")
	middleware.InitRedisRateLimiter(nil)

	hub := ws.NewHub(ws.HubOptions{})
	t.Cleanup(hub.Close)

	r := gin.New()
	RegisterRoutes(r, hub, nil, "test", &config.Config{
		BoardHeight:    20,
		JoinRateLimit:  joinLimit,
		JoinRateWindow: time.Minute,
	})
	return r
}

func do(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	r := newEngine(t, 30)

	if w := do(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200 got %d", w.Code)
	}
	w := do(r, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200 got %d", w.Code)
	}
	var res handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("readyz body: %v", err)
	}
	if res.Checks["redis"] != "disabled" || res.Version != "test" ||
		res.Checks["relay"] != "accepting" || res.Checks["rooms"] != "0" || res.Checks["connections"] != "0" {
		t.Fatalf("unexpected readiness %+v", res)
	}
	if w := do(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: unexpected response %d", w.Code)
	}
}

func TestJoinFlow(t *testing.T) {
	r := newEngine(t, 30)

	w := do(r, http.MethodPost, "/api/v1/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d", w.Code)
	}
	var created struct{ Session string }
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.Session == "" {
		t.Fatalf("create: bad body %s", w.Body.String())
	}

	w = do(r, http.MethodPost, "/api/v1/sessions/"+created.Session+"/join", "")
	if w.Code != http.StatusOK {
		t.Fatalf("join: expected 200 got %d", w.Code)
	}
	var joined handlers.JoinResponse
	if err := json.Unmarshal(w.Body.Bytes(), &joined); err != nil {
		t.Fatalf("join body: %v", err)
	}
	if joined.Session != created.Session || joined.Participant <= 0 || joined.BoardHeight != 20 {
		t.Fatalf("unexpected join %+v", joined)
	}
	claims, err := service.ParseJWT(joined.Token)
	if err != nil || claims.Participant != joined.Participant || claims.Session != created.Session {
		t.Fatalf("token does not match join: %+v %v", claims, err)
	}

	w = do(r, http.MethodGet, "/api/v1/sessions/"+created.Session, joined.Token)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"participants":[]`) ||
		!strings.Contains(w.Body.String(), fmt.Sprintf(`"participant":%d`, joined.Participant)) {
		t.Fatalf("session: unexpected %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/api/v1/sessions/elsewhere", joined.Token); w.Code != http.StatusForbidden {
		t.Fatalf("foreign session: expected 403 got %d", w.Code)
	}
}

func TestJoinRejectsBadSessionID(t *testing.T) {
	r := newEngine(t, 30)
	if w := do(r, http.MethodPost, "/api/v1/sessions/bad%20id/join", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestJoinRateLimited(t *testing.T) {
	r := newEngine(t, 2)
	for i, want := range []int{200, 200, 429} {
		if w := do(r, http.MethodPost, "/api/v1/sessions/room/join", ""); w.Code != want {
			t.Fatalf("join %d: expected %d got %d", i, want, w.Code)
		}
	}
	// other sessions have their own budget
	if w := do(r, http.MethodPost, "/api/v1/sessions/room2/join", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
}
