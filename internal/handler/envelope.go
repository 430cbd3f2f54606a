package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/auth"
)

// envelope is the uniform response shape: status is "success" for 2xx,
// "fail" for 4xx and "error" for 5xx.  Data is omitted when empty.
type envelope struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func respond(c echo.Context, code int, message string, data interface{}) error {
	return c.JSON(code, envelope{Status: "success", StatusCode: code, Message: message, Data: data})
}

func fail(c echo.Context, code int, message string) error {
	status := "fail"
	if code >= http.StatusInternalServerError {
		status = "error"
	}
	return c.JSON(code, envelope{Status: status, StatusCode: code, Message: message})
}

// domainFail translates a service error into an HTTP response.  Each
// domain kind maps 1:1 to a status code; internal and delivery
// failures are logged server-side and surface only as a generic 500.
func domainFail(c echo.Context, err error) error {
	kind := auth.KindOf(err)
	code, ok := statusByKind[kind]
	if !ok || code >= http.StatusInternalServerError {
		c.Logger().Errorf("auth: %v", err)
		return fail(c, http.StatusInternalServerError, "internal server error")
	}
	return fail(c, code, err.Error())
}

var statusByKind = map[auth.Kind]int{
	auth.KindConflict:           http.StatusConflict,
	auth.KindNotFound:           http.StatusNotFound,
	auth.KindInvalidCredentials: http.StatusUnauthorized,
	auth.KindNotVerified:        http.StatusForbidden,
	auth.KindAlreadyVerified:    http.StatusBadRequest,
	auth.KindInvalidCode:        http.StatusBadRequest,
	auth.KindCodeExpired:        http.StatusBadRequest,
	auth.KindInvalidOtp:         http.StatusUnauthorized,
	auth.KindTokenExpired:       http.StatusUnauthorized,
	auth.KindTokenInvalid:       http.StatusUnauthorized,
	auth.KindAlreadyEnabled:     http.StatusBadRequest,
	auth.KindNotEnabled:         http.StatusBadRequest,
	auth.KindSetupNotInitiated:  http.StatusBadRequest,
	auth.KindWeakPassword:       http.StatusBadRequest,
	auth.KindDeliveryFailure:    http.StatusInternalServerError,
	auth.KindInternal:           http.StatusInternalServerError,
}
