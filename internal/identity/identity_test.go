package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spritenest-api/internal/cache"
	"spritenest-api/pkg/apierror"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-jwt-secret"

func signTestToken(t *testing.T, sub, email, username string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"user_metadata": map[string]string{
			"username": username,
		},
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(expiresIn).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestUserFromTokenLocalVerification(t *testing.T) {
	c := NewClient(Config{JWTSecret: testSecret}, nil)

	token := signTestToken(t, "U1", "dev@example.com", "dev", time.Hour)
	user, err := c.UserFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("UserFromToken: %v", err)
	}
	if user.ID != "U1" || user.Email != "dev@example.com" || user.Username != "dev" {
		t.Errorf("user = %+v", user)
	}
}

func TestUserFromTokenRejectsExpired(t *testing.T) {
	c := NewClient(Config{JWTSecret: testSecret}, nil)

	token := signTestToken(t, "U1", "dev@example.com", "dev", -time.Hour)
	if _, err := c.UserFromToken(context.Background(), token); err == nil {
		t.Fatal("UserFromToken accepted an expired token")
	}
}

func TestUserFromTokenRejectsWrongSecret(t *testing.T) {
	c := NewClient(Config{JWTSecret: "a-different-secret"}, nil)

	token := signTestToken(t, "U1", "dev@example.com", "dev", time.Hour)
	if _, err := c.UserFromToken(context.Background(), token); err == nil {
		t.Fatal("UserFromToken accepted a token signed with the wrong secret")
	}
}

func TestUserFromTokenEmpty(t *testing.T) {
	c := NewClient(Config{JWTSecret: testSecret}, nil)

	if _, err := c.UserFromToken(context.Background(), "  "); err != ErrUnauthenticated {
		t.Errorf("UserFromToken(empty) = %v, want ErrUnauthenticated", err)
	}
}

func TestUserFromTokenProviderLookup(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("provider hit %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Error("apikey header missing")
		}
		calls++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "U9",
			"email": "artist@example.com",
			"user_metadata": map[string]string{
				"username": "artist",
			},
		})
	}))
	defer srv.Close()

	memCache := cache.NewMemoryCache()
	defer memCache.Close()

	c := NewClient(Config{ProviderURL: srv.URL, APIKey: "anon-key", CacheTTL: time.Minute}, memCache)

	user, err := c.UserFromToken(context.Background(), "tok-123")
	if err != nil {
		t.Fatalf("UserFromToken: %v", err)
	}
	if user.ID != "U9" || user.Username != "artist" {
		t.Errorf("user = %+v", user)
	}

	// Second lookup is served from the cache.
	if _, err := c.UserFromToken(context.Background(), "tok-123"); err != nil {
		t.Fatalf("UserFromToken (cached): %v", err)
	}
	if calls != 1 {
		t.Errorf("provider called %d times, want 1", calls)
	}
}

func TestUserFromTokenProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{ProviderURL: srv.URL}, nil)

	if _, err := c.UserFromToken(context.Background(), "bad-token"); err != ErrUnauthenticated {
		t.Errorf("UserFromToken = %v, want ErrUnauthenticated", err)
	}
}

func TestUserFromTokenProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{ProviderURL: srv.URL}, nil)

	_, err := c.UserFromToken(context.Background(), "tok-123")
	apiErr, ok := err.(*apierror.Error)
	if !ok || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("UserFromToken = %v, want 502", err)
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "pkce" {
			t.Errorf("provider hit %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["auth_code"] != "one-time-code" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error_description": "invalid code"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]string{"id": "U1"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{ProviderURL: srv.URL}, nil)

	session, err := c.ExchangeCode(context.Background(), "one-time-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if session.AccessToken != "at-1" || session.User.ID != "U1" {
		t.Errorf("session = %+v", session)
	}

	if _, err := c.ExchangeCode(context.Background(), "wrong-code"); err == nil {
		t.Error("ExchangeCode accepted a rejected code")
	}
	if _, err := c.ExchangeCode(context.Background(), ""); err == nil {
		t.Error("ExchangeCode accepted an empty code")
	}
}

func TestSignOutDropsCachedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	memCache := cache.NewMemoryCache()
	defer memCache.Close()

	c := NewClient(Config{ProviderURL: srv.URL, JWTSecret: testSecret}, memCache)

	token := signTestToken(t, "U1", "dev@example.com", "dev", time.Hour)
	if _, err := c.UserFromToken(context.Background(), token); err != nil {
		t.Fatalf("UserFromToken: %v", err)
	}

	if err := c.SignOut(context.Background(), token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	ok, _ := memCache.Exists(context.Background(), tokenCacheKey(token))
	if ok {
		t.Error("token memoization survived sign-out")
	}
}
