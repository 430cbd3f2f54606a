package middleware // middleware provides shared request processing for handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/token"
)

// Context keys populated by JWTAuth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and injects the verified identity into the request context.
// Handlers behind it read the account ID via `c.Get("user_id")` and
// the role via `c.Get("role")`.  An expired token gets its own
// message so clients know to refresh rather than re-authenticate the
// credentials.
func JWTAuth(tokens *token.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return unauthorized(c, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				if errors.Is(err, token.ErrTokenExpired) {
					return unauthorized(c, "access token expired")
				}
				return unauthorized(c, "invalid access token")
			}

			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"status":     "fail",
		"statusCode": http.StatusUnauthorized,
		"message":    msg,
	})
}
