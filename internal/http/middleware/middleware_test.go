package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	h := CORS([]string{"https://portal.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example.com" {
		t.Fatalf("expected origin echoed back, got %q", got)
	}
}

func TestCORSIgnoresUnlistedOrigin(t *testing.T) {
	h := CORS([]string{"https://portal.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must not be allowed, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"*"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/appointments", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected %d for preflight, got %d", http.StatusNoContent, rr.Code)
	}
}

func signStaffToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "staff-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestStaffJWTAcceptsValidToken(t *testing.T) {
	var gotSubject string
	h := StaffJWT("top-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := StaffClaimsFromContext(r.Context()); ok {
			gotSubject = claims.Subject
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/appointments/x/attendance", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, "top-secret"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotSubject != "staff-1" {
		t.Fatalf("expected claims in context, got %q", gotSubject)
	}
}

func TestStaffJWTRejectsBadSignature(t *testing.T) {
	h := StaffJWT("top-secret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/appointments/x/attendance", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, "wrong-secret"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestStaffJWTRejectsMissingHeader(t *testing.T) {
	h := StaffJWT("top-secret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/appointments/x/attendance", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
