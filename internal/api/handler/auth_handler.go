package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"authgate/internal/api/middleware"
	"authgate/internal/api/validation"
	"authgate/internal/app/service"
	"authgate/internal/common"
	"authgate/internal/platform/config"

	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	authService *service.AuthService
	rules       validation.Table
}

func NewAuthHandler(authService *service.AuthService, rules validation.Table) *AuthHandler {
	return &AuthHandler{authService: authService, rules: rules}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Get("/verify-email/{token}", h.verifyEmail)
	r.Post("/refresh-token", h.refreshToken)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password/{token}", h.resetPassword)

	r.Group(func(secured chi.Router) {
		secured.Use(middleware.Authenticator)
		secured.Post("/logout", h.logout)
		secured.Post("/current-user", h.currentUser)
		secured.Post("/current-password", h.changeCurrentPassword)
		secured.Post("/resend-email-verification", h.resendEmailVerification)
	})
}

// validate runs the route's rule list; a non-empty result has already been
// written to the response.
func (h *AuthHandler) validate(w http.ResponseWriter, route string, values map[string]string) bool {
	if errs := h.rules[route].Apply(values); len(errs) > 0 {
		common.RespondWithFieldErrors(w, http.StatusUnprocessableEntity, "Received data is not valid", errs)
		return false
	}
	return true
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !h.validate(w, validation.RouteRegister, map[string]string{
		"email":    req.Email,
		"username": req.Username,
		"password": req.Password,
		"role":     req.Role,
	}) {
		return
	}

	account, err := h.authService.Register(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated,
		map[string]any{"user": account},
		"User registered successfully and verification email has been sent")
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !h.validate(w, validation.RouteLogin, map[string]string{
		"identifier": req.Identifier,
		"password":   req.Password,
	}) {
		return
	}

	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	setAuthCookies(w, resp.AccessToken, resp.RefreshToken)
	common.RespondWithJSON(w, http.StatusOK, resp, "User logged in successfully")
}

func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		common.RespondWithError(w, http.StatusBadRequest, "Verification token is missing")
		return
	}
	account, err := h.authService.VerifyEmail(r.Context(), token)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK,
		map[string]any{"isEmailVerified": account.IsEmailVerified},
		"Email verified successfully")
}

// refreshToken accepts the refresh token from the httpOnly cookie or, for
// non-browser clients, from the JSON body.
func (h *AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			presented = body.RefreshToken
		}
	}

	pair, err := h.authService.RefreshAccessToken(r.Context(), presented)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	setAuthCookies(w, pair.AccessToken, pair.RefreshToken)
	common.RespondWithJSON(w, http.StatusOK, pair, "Access token refreshed")
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !h.validate(w, validation.RouteForgotPassword, map[string]string{"email": req.Email}) {
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	// Same body whether or not the address is registered.
	common.RespondWithJSON(w, http.StatusOK, nil,
		"If the email is registered, a password reset mail has been sent")
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		common.RespondWithError(w, http.StatusBadRequest, "Reset token is missing")
		return
	}
	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !h.validate(w, validation.RouteResetPassword, map[string]string{"newPassword": req.NewPassword}) {
		return
	}

	if err := h.authService.ResetPassword(r.Context(), token, req.NewPassword); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, nil, "Password reset successfully")
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	if err := h.authService.Logout(r.Context(), userID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	clearAuthCookies(w)
	common.RespondWithJSON(w, http.StatusOK, nil, "User logged out")
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	account, err := h.authService.CurrentUser(r.Context(), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"user": account}, "Current user fetched successfully")
}

func (h *AuthHandler) changeCurrentPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !h.validate(w, validation.RouteChangePassword, map[string]string{
		"oldPassword": req.OldPassword,
		"newPassword": req.NewPassword,
	}) {
		return
	}

	if err := h.authService.ChangeCurrentPassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, nil, "Password changed successfully")
}

func (h *AuthHandler) resendEmailVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	if err := h.authService.ResendEmailVerification(r.Context(), userID); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, nil, "Verification mail has been sent")
}

func setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(config.AppConfig.AccessTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(config.AppConfig.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{"accessToken", "refreshToken"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
