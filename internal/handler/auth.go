package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/auth"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/token"
)

// AuthHandler exposes the authentication core over HTTP.  It owns no
// logic beyond binding, trivial presence checks and translating the
// service's error kinds into the response envelope.
type AuthHandler struct {
	Svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler { return &AuthHandler{Svc: svc} }

const dbTimeout = 5 * time.Second

// ----- DTOs -----

type signUpReq struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}
type signInReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type signIn2FAReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type verifyEmailReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}
type emailReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}
type totpCodeReq struct {
	Token string `json:"token"`
}

type sessionResp struct {
	User         auth.Profile `json:"user"`
	AccessToken  token.Issued `json:"accessToken"`
	RefreshToken token.Issued `json:"refreshToken"`
}
type pending2FAResp struct {
	RequiresOTP bool         `json:"requiresOtp"`
	User        auth.Profile `json:"user"`
}
type loginAttemptResp struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	Device    string    `json:"device"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"createdAt"`
}

// SignUp registers an account and triggers the verification email.
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req signUpReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return fail(c, http.StatusBadRequest, "firstName, lastName, email and password are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	profile, err := h.Svc.SignUp(ctx, strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName), req.Email, req.Password)
	if err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusCreated, "account created, verification code sent", echo.Map{"user": profile})
}

// SignIn returns a token pair, or a pending-2FA payload when the
// account requires a TOTP code.
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email and password are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Svc.SignIn(ctx, req.Email, req.Password, requestContext(c))
	if err != nil {
		return domainFail(c, err)
	}
	if res.RequiresOTP {
		return respond(c, http.StatusOK, "one-time password required", pending2FAResp{RequiresOTP: true, User: res.Profile})
	}
	return respond(c, http.StatusOK, "signed in", sessionResp{User: res.Profile, AccessToken: res.Access, RefreshToken: res.Refresh})
}

// SignIn2FA completes a two-factor signin with email, password and a
// current TOTP code.
func (h *AuthHandler) SignIn2FA(c echo.Context) error {
	var req signIn2FAReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" || req.Token == "" {
		return fail(c, http.StatusBadRequest, "email, password and token are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Svc.SignIn2FA(ctx, req.Email, req.Password, req.Token, requestContext(c))
	if err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "signed in", sessionResp{User: res.Profile, AccessToken: res.Access, RefreshToken: res.Refresh})
}

// RefreshToken exchanges a refresh token for a new access token.  The
// refresh token is not rotated.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refreshToken is required")
	}
	access, err := h.Svc.RefreshAccessToken(strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "access token refreshed", echo.Map{"accessToken": access})
}

// VerifyEmail consumes an emailed verification code.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailReq
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" {
		return fail(c, http.StatusBadRequest, "email and code are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.VerifyEmail(ctx, req.Email, req.Code); err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "email verified", nil)
}

// ResendVerification issues and emails a fresh verification code.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return fail(c, http.StatusBadRequest, "email is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.ResendVerificationCode(ctx, req.Email); err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "verification code sent", nil)
}

// ForgotPassword starts the password reset flow.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return fail(c, http.StatusBadRequest, "email is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.ForgotPassword(ctx, req.Email); err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "password reset code sent", nil)
}

// ResetPassword consumes a reset code and sets a new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" || req.NewPassword == "" {
		return fail(c, http.StatusBadRequest, "email, code and newPassword are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.ResetPassword(ctx, req.Email, req.Code, req.NewPassword); err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "password reset", nil)
}

// Setup2FA generates a pending TOTP secret and a provisioning QR code
// for the authenticated account.
func (h *AuthHandler) Setup2FA(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	setup, err := h.Svc.Setup2FA(ctx, uid)
	if err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "scan the code with an authenticator app, then verify", setup)
}

// Verify2FA confirms the pending secret and turns 2FA on.
func (h *AuthHandler) Verify2FA(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req totpCodeReq
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return fail(c, http.StatusBadRequest, "token is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.Verify2FA(ctx, uid, req.Token); err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "two-factor authentication enabled", nil)
}

// Disable2FA turns 2FA off; a valid current code is required.
func (h *AuthHandler) Disable2FA(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var req totpCodeReq
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return fail(c, http.StatusBadRequest, "token is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Svc.Disable2FA(ctx, uid, req.Token); err != nil {
		return domainFail(c, err)
	}
	return respond(c, http.StatusOK, "two-factor authentication disabled", nil)
}

// LoginHistory lists the account's recent login attempts.
func (h *AuthHandler) LoginHistory(c echo.Context) error {
	uid, ok := currentUserID(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	attempts, err := h.Svc.LoginHistory(ctx, uid)
	if err != nil {
		return domainFail(c, err)
	}
	out := make([]loginAttemptResp, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, loginAttemptResp{
			IP: a.IP, UserAgent: a.UserAgent, Device: a.Device,
			Success: a.Success, CreatedAt: a.CreatedAt,
		})
	}
	return respond(c, http.StatusOK, "login history", echo.Map{"attempts": out})
}

// Me returns the identity carried by the presented access token.
func (h *AuthHandler) Me(c echo.Context) error {
	return respond(c, http.StatusOK, "authenticated", echo.Map{
		"userId": c.Get(middleware.CtxUserID),
		"role":   c.Get(middleware.CtxRole),
	})
}

func requestContext(c echo.Context) auth.RequestContext {
	return auth.RequestContext{
		IP:        c.RealIP(),
		UserAgent: c.Request().Header.Get("User-Agent"),
	}
}

func currentUserID(c echo.Context) (uint64, bool) {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	return uid, ok && uid != 0
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}
