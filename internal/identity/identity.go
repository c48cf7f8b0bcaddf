// Package identity wraps the external identity provider. The API never
// issues or refreshes credentials itself: it verifies provider-issued access
// tokens and delegates code exchange and sign-out upstream.
package identity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"spritenest-api/internal/cache"
	"spritenest-api/internal/model"
	"spritenest-api/pkg/apierror"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated indicates a missing, invalid, or expired access token.
var ErrUnauthenticated = errors.New("invalid or expired token")

// Config holds the provider connection settings.
type Config struct {
	// ProviderURL is the base URL of the identity provider.
	ProviderURL string
	// APIKey is the provider's public API key, sent as the apikey header.
	APIKey string
	// JWTSecret enables local verification of provider-issued HS256 tokens.
	// When empty, every lookup round-trips to the provider.
	JWTSecret string
	// CacheTTL bounds how long a verified token->user mapping is reused.
	CacheTTL time.Duration
}

// Client is the identity delegate.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      cache.Cache
}

// NewClient creates an identity client. cache may be nil to disable
// memoization of verified tokens.
func NewClient(cfg Config, c cache.Cache) *Client {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      c,
	}
}

// providerClaims is the claim set of a provider-issued access token.
type providerClaims struct {
	jwt.RegisteredClaims
	Email        string `json:"email,omitempty"`
	UserMetadata struct {
		Username string `json:"username,omitempty"`
	} `json:"user_metadata,omitempty"`
}

// providerUser is the provider's user payload.
type providerUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UserMetadata struct {
		Username string `json:"username"`
	} `json:"user_metadata"`
}

func (u *providerUser) toModel() *model.User {
	return &model.User{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.UserMetadata.Username,
		CreatedAt: u.CreatedAt,
	}
}

// UserFromToken resolves the user behind an access token. Verified lookups
// are memoized for CacheTTL, keyed by a digest of the token rather than the
// token itself.
func (c *Client) UserFromToken(ctx context.Context, accessToken string) (*model.User, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	cacheKey := tokenCacheKey(accessToken)
	if c.cache != nil {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var u model.User
			if err := json.Unmarshal(data, &u); err == nil {
				return &u, nil
			}
		}
	}

	var user *model.User
	var err error
	if c.cfg.JWTSecret != "" {
		user, err = c.verifyLocal(accessToken)
	} else {
		user, err = c.fetchUser(ctx, accessToken)
	}
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, err := json.Marshal(user); err == nil {
			_ = c.cache.Set(ctx, cacheKey, data, c.cfg.CacheTTL)
		}
	}

	return user, nil
}

// verifyLocal validates the token signature and expiry against the
// provider's JWT secret without a network call.
func (c *Client) verifyLocal(accessToken string) (*model.User, error) {
	claims := &providerClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(c.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, ErrUnauthenticated
	}

	u := &model.User{
		ID:       claims.Subject,
		Email:    claims.Email,
		Username: claims.UserMetadata.Username,
	}
	if claims.IssuedAt != nil {
		u.CreatedAt = claims.IssuedAt.Time
	}
	return u, nil
}

// fetchUser asks the provider who the token belongs to.
func (c *Client) fetchUser(ctx context.Context, accessToken string) (*model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ProviderURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Identity] Provider unreachable: %v", err)
		return nil, apierror.BadGateway("Identity provider unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierror.BadGateway(fmt.Sprintf("Identity provider returned %d", resp.StatusCode))
	}

	var pu providerUser
	if err := json.NewDecoder(resp.Body).Decode(&pu); err != nil {
		return nil, fmt.Errorf("failed to decode provider user: %w", err)
	}
	if pu.ID == "" {
		return nil, ErrUnauthenticated
	}
	return pu.toModel(), nil
}

// ExchangeCode trades an auth code for a provider session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*model.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("auth code is required")
	}

	body, _ := json.Marshal(map[string]string{"auth_code": code})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.ProviderURL+"/auth/v1/token?grant_type=pkce", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providerErrorMessage(resp.Body)
		return nil, fmt.Errorf("code exchange failed: %s", msg)
	}

	var session model.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode provider session: %w", err)
	}
	return &session, nil
}

// SignOut invalidates the session upstream and drops the local memoization.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, tokenCacheKey(accessToken))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ProviderURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		log.Printf("[Identity] Sign-out returned %d", resp.StatusCode)
		return fmt.Errorf("sign-out failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.cfg.APIKey)
}

func providerErrorMessage(r io.Reader) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"msg"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		}
	}
	return "unknown provider error"
}

func tokenCacheKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return "identity:token:" + hex.EncodeToString(sum[:16])
}
