package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-formsync/core"
)

type ownerKey struct{}

// OwnerFromContext returns the owner id set by the session middleware.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.backend.Connect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	ttl := redirect.VerifierTTL
	if ttl <= 0 {
		ttl = defaultVerifierTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     VerifierCookie,
		Value:    redirect.CodeVerifier,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := core.CallbackRequest{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
	if cookie, err := r.Cookie(VerifierCookie); err == nil {
		req.CodeVerifier = cookie.Value
	}
	if upstream := strings.TrimSpace(req.Error); upstream != "" {
		h.logger.Warn("oauth callback returned an error", "error", upstream)
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: upstream})
		return
	}

	result, err := h.backend.CompleteCallback(r.Context(), req)
	if err != nil {
		if code := core.UpstreamCode(err); code != "" {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: code})
			return
		}
		writeError(w, err)
		return
	}

	token, err := h.sessions.Issue(result.Credential)
	if err != nil {
		writeError(w, core.InternalError("issue session token", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     VerifierCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
	http.Redirect(w, r, h.frontendURL+"/login?token="+url.QueryEscape(token), http.StatusFound)
}

func (h *Handler) requireOwner(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, core.UnauthorizedError("Authentication failed: No token provided", nil))
			return
		}
		claims, err := h.sessions.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		if h.owners != nil {
			if _, err := h.owners.Credential(r.Context(), claims.Subject); err != nil {
				if core.IsNotFound(err) {
					writeError(w, core.UnauthorizedError("Authentication failed: User not found", err))
					return
				}
				writeError(w, err)
				return
			}
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, claims.Subject)
		next(w, r.WithContext(ctx))
	})
}
