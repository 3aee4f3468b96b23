package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"tetris_together/internal/service"
)

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service.InitJWT("middleware-secret")
	tok, err := service.GenerateJWT(7, "room")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	r := gin.New()
	r.GET("/sessions/:session", JWT(), func(c *gin.Context) {
		c.JSON(200, gin.H{"participant": c.GetInt64(CtxParticipant)})
	})

	cases := []struct {
		path, auth string
		want       int
	}{
		{"/sessions/room", "Bearer " + tok, http.StatusOK},
		{"/sessions/room?token=" + tok, "", http.StatusOK},
		{"/sessions/other", "Bearer " + tok, http.StatusForbidden},
		{"/sessions/room", "Bearer nope", http.StatusUnauthorized},
		{"/sessions/room", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.auth != "" {
			req.Header.Set("Authorization", tc.auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %q: expected %d got %d", tc.path, tc.auth, tc.want, w.Code)
		}
	}
}
