package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/devlance/auth-service/internal/domain"
	"github.com/devlance/auth-service/internal/service"
	"github.com/devlance/auth-service/pkg/config"
	"github.com/devlance/auth-service/pkg/logger"
	"github.com/devlance/auth-service/pkg/tokens"
	"github.com/go-chi/chi/v5"
)

// refreshCookie is the only place the refresh credential is ever exposed to
// the browser. It never appears in a response body.
const refreshCookie = "refresh_token"

type claimsKey struct{}

type Handlers struct {
	authService service.AuthService
	issuer      *tokens.Issuer
	config      *config.Config
}

func New(authService service.AuthService, issuer *tokens.Issuer, config *config.Config) *Handlers {
	return &Handlers{
		authService: authService,
		issuer:      issuer,
		config:      config,
	}
}

// Routes mounts the auth surface on the given router.
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/check-email", h.CheckEmail)
		r.Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/me", h.Me)
		})
	})
}

// RequireAuth verifies the bearer access token and stores its claims in the
// request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
			return
		}

		claims, err := h.issuer.VerifyAccess(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			if errors.Is(err, tokens.ErrExpired) {
				writeError(w, http.StatusUnauthorized, "Access token expired", "TOKEN_EXPIRED")
				return
			}
			writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
			return
		}

		accountID, err := claims.AccountID()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
			return
		}

		ctx := context.WithValue(r.Context(), logger.AccountIDKey, accountID)
		ctx = context.WithValue(ctx, claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getClaims(r *http.Request) *tokens.Claims {
	if claims, ok := r.Context().Value(claimsKey{}).(*tokens.Claims); ok {
		return claims
	}
	return nil
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *Handlers) sessionMeta(r *http.Request) service.SessionMeta {
	return service.SessionMeta{
		UserAgent: r.UserAgent(),
		IP:        getClientIP(r),
	}
}

func (h *Handlers) setRefreshCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	h.setRefreshCookie(w, "", -1)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response := map[string]string{
		"error": message,
		"code":  code,
	}
	writeJSON(w, statusCode, response)
}

// writeServiceError maps domain error variants to HTTP responses. Matching is
// on error identity, never on message text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Error(), "INVALID_INPUT")
		return
	}

	var rateLimited *domain.RateLimitError
	if errors.As(err, &rateLimited) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":       "Too many requests. Please try again later.",
			"code":        "RATE_LIMITED",
			"retry_after": int(rateLimited.RetryAfter.Seconds()),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		writeError(w, http.StatusUnauthorized, "No account found with this email", "ACCOUNT_NOT_FOUND")
	case errors.Is(err, domain.ErrNoPasswordSet):
		writeError(w, http.StatusUnauthorized, "This account signs in with one-time codes", "NO_PASSWORD_SET")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect email or password", "INVALID_CREDENTIALS")
	case errors.Is(err, domain.ErrAccountInactive):
		writeError(w, http.StatusUnauthorized, "Account is disabled", "ACCOUNT_INACTIVE")
	case errors.Is(err, domain.ErrOTPExpired):
		writeError(w, http.StatusUnauthorized, "Code expired or already used. Request a new one.", "OTP_EXPIRED")
	case errors.Is(err, domain.ErrOTPInvalid):
		writeError(w, http.StatusUnauthorized, "Incorrect code", "OTP_INVALID")
	case errors.Is(err, domain.ErrOTPTooManyAttempts):
		writeError(w, http.StatusUnauthorized, "Too many incorrect attempts. Request a new code.", "OTP_TOO_MANY_ATTEMPTS")
	case errors.Is(err, domain.ErrRefreshInvalid):
		writeError(w, http.StatusUnauthorized, "Session expired. Please sign in again.", "INVALID_REFRESH")
	case errors.Is(err, domain.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "An account with this email already exists", "EMAIL_EXISTS")
	default:
		logger.ErrorContext(r.Context(), "Unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
	}
}
