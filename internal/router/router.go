package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/token"
)

// RegisterRoutes registers routes that need no authentication or
// limiting.  Currently that is only the health probe.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth wires all authentication endpoints.  Public endpoints
// live under /v1/auth with per-endpoint rate limits: a short
// (15-minute) window for credential and code checks, a long (1-hour)
// window for anything that sends an email.  Bearer-protected
// endpoints share the same prefix behind the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, tokens *token.Codec, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	short := middleware.NewFixedWindow(rlCfg, rdb, rlCfg.ShortLimit, rlCfg.ShortWindow)
	long := middleware.NewFixedWindow(rlCfg, rdb, rlCfg.LongLimit, rlCfg.LongWindow)

	g := e.Group("/v1/auth")
	g.POST("/signup", a.SignUp, long)
	g.POST("/signin", a.SignIn, short)
	g.POST("/signin/2fa", a.SignIn2FA, short)
	g.POST("/refresh-token", a.RefreshToken, short)
	g.POST("/verify-email", a.VerifyEmail, short)
	g.POST("/resend-verification", a.ResendVerification, long)
	g.POST("/forgot-password", a.ForgotPassword, long)
	g.POST("/reset-password", a.ResetPassword, short)

	// Protected endpoints require a valid access token; any known role
	// may manage its own 2FA and read its own login history.
	sec := e.Group("/v1/auth", middleware.JWTAuth(tokens), middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	sec.POST("/2fa/setup", a.Setup2FA)
	sec.POST("/2fa/verify", a.Verify2FA)
	sec.POST("/2fa/disable", a.Disable2FA)
	sec.GET("/login-history", a.LoginHistory)

	e.GET("/v1/auth/me", a.Me, middleware.JWTAuth(tokens))
}
