package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func staffClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "nurse-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:     string(RoleClinicPersonnel),
		ClinicID: 3,
	}
}

// runMW runs mw around a handler that captures the actor on the context.
func runMW(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (Actor, bool, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Actor
	var found bool
	err := mw(func(c echo.Context) error {
		got, found = ActorFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})(c)
	return got, found, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, _, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, staffClaims(), testSigningKey)

	actor, found, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected actor on context")
	}
	want := Actor{ID: "nurse-7", Role: RoleClinicPersonnel, ClinicID: 3}
	if actor != want {
		t.Errorf("expected %+v, got %+v", want, actor)
	}
}

func TestJWTMiddleware_PatientClaims(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-12"},
		Role:             string(RolePatient),
		PatientID:        12,
	}
	token := createTestToken(t, claims, testSigningKey)

	actor, _, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.PatientID != 12 || actor.Role != RolePatient || actor.IsStaff() {
		t.Errorf("unexpected patient actor: %+v", actor)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := staffClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := createTestToken(t, claims, testSigningKey)

	_, _, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, staffClaims(), []byte("some-other-key"))

	_, _, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_IssuerAndAudience(t *testing.T) {
	claims := staffClaims()
	claims.Issuer = "rabiesresq"
	claims.Audience = jwt.ClaimStrings{"clinic-api"}
	token := createTestToken(t, claims, testSigningKey)

	cfg := JWTConfig{Issuer: "rabiesresq", Audience: "clinic-api", SigningKey: testSigningKey}
	if _, _, err := runMW(t, JWTMiddleware(cfg), "Bearer "+token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Issuer = "someone-else"
	_, _, err := runMW(t, JWTMiddleware(cfg), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_UnknownRole(t *testing.T) {
	claims := staffClaims()
	claims.Role = "janitor"
	token := createTestToken(t, claims, testSigningKey)

	_, _, err := runMW(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	dev := Actor{ID: "dev-user", Role: RoleSystemAdmin, ClinicID: 1}

	actor, found, err := runMW(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, dev), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || actor != dev {
		t.Errorf("expected dev actor, got %+v (found=%v)", actor, found)
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	dev := Actor{ID: "dev-user", Role: RoleSystemAdmin, ClinicID: 1}
	mw := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}, dev)

	token := createTestToken(t, staffClaims(), testSigningKey)
	actor, _, err := runMW(t, mw, "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.ID != "nurse-7" {
		t.Errorf("expected token actor, got %+v", actor)
	}

	_, _, err = runMW(t, mw, "Bearer not-a-jwt")
	expectStatus(t, err, http.StatusUnauthorized)
}
