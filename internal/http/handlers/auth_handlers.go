package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/devlance/auth-service/internal/domain"
	"github.com/devlance/auth-service/internal/service"
)

// CheckEmail reports whether an account exists for the email, so the client
// can route the user to login or signup.
func (h *Handlers) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	result, err := h.authService.CheckEmail(r.Context(), &req, getClientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exists":    result.Exists,
		"firstName": result.FirstName,
	})
}

// SendOTP issues a one-time code and emails it.
func (h *Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	expiresIn, err := h.authService.SendOTP(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Code sent. Check your email.",
		"expiresInSeconds": int(expiresIn.Seconds()),
	})
}

// VerifyOTP consumes a one-time code and establishes a session. For signup
// codes it also creates the account.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	result, err := h.authService.VerifyOTP(r.Context(), &req, h.sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeSession(w, http.StatusOK, result)
}

// Login handles password authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	result, err := h.authService.Login(r.Context(), &req, h.sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeSession(w, http.StatusOK, result)
}

// Register handles password registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	result, err := h.authService.Register(r.Context(), &req, h.sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.writeSession(w, http.StatusCreated, result)
}

// Refresh mints a new access token from the refresh cookie.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "Session expired. Please sign in again.", "INVALID_REFRESH")
		return
	}

	accessToken, err := h.authService.Refresh(r.Context(), cookie.Value)
	if err != nil {
		// A dead credential is useless to the browser too.
		h.clearRefreshCookie(w)
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken": accessToken,
	})
}

// Logout revokes the refresh credential and clears the cookie. Always
// succeeds: logging out twice is not an error.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		if err := h.authService.Logout(r.Context(), cookie.Value); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Logged out",
	})
}

// Me returns the authenticated account.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
		return
	}

	accountID, err := claims.AccountID()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
		return
	}

	account, err := h.authService.GetAccount(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, account.ToAccountInfo())
}

func (h *Handlers) writeSession(w http.ResponseWriter, status int, result *service.AuthResult) {
	h.setRefreshCookie(w, result.RefreshToken, int(result.RefreshTTL.Seconds()))
	writeJSON(w, status, &domain.AuthResponse{
		AccessToken: result.AccessToken,
		Account:     result.Account.ToAccountInfo(),
	})
}
