package handler

import (
	"log"
	"net/http"
	"net/url"

	"spritenest-api/internal/identity"
	"spritenest-api/internal/middleware"
	"spritenest-api/pkg/apierror"
	"spritenest-api/pkg/response"
)

// AuthHandler handles authentication HTTP requests.
type AuthHandler struct {
	identity *identity.Client
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(identityClient *identity.Client) *AuthHandler {
	return &AuthHandler{
		identity: identityClient,
	}
}

// Callback handles GET /api/auth/callback
//
// Exchanges the provider's one-time code for a session and redirects the
// browser back into the app. A missing code still redirects; a failed
// exchange lands on the login page with the error message.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	if code != "" {
		if _, err := h.identity.ExchangeCode(r.Context(), code); err != nil {
			log.Printf("[AuthHandler] Code exchange failed: %v", err)
			http.Redirect(w, r, "/login?error="+url.QueryEscape(err.Error()), http.StatusFound)
			return
		}
	}

	http.Redirect(w, r, "/assets", http.StatusFound)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		response.Error(w, apierror.Unauthorized("Not logged in"))
		return
	}
	response.OK(w, user)
}

// SignOut handles POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token := ""
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		token = auth[7:]
	}
	if token == "" {
		response.Error(w, apierror.Unauthorized("Not logged in"))
		return
	}

	if err := h.identity.SignOut(r.Context(), token); err != nil {
		log.Printf("[AuthHandler] Sign out failed: %v", err)
	}

	response.Message(w, http.StatusOK, "Signed out")
}
