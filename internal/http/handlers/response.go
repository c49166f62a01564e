// Response helpers.
//
// Every failure leaves the API as an ErrorResponse with a stable code:
//
//	HTTP/1.1 503 Service Unavailable
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "persistence_failed",
//	  "message": "could not store the event, retry later"
//	}
//
// Conversation failures are mapped in one place so the JSON and websocket
// transports report the same codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-feedback-bot/internal/http/middleware"
	"github.com/tbourn/go-feedback-bot/internal/services"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"persistence_failed"`
	// Human-readable message
	Message string `json:"message" example:"could not store the event, retry later"`
}

// apiError is a status, code and message triple for fail.
type apiError struct {
	Status  int
	Code    string
	Message string
}

// conversationError maps an error from HandleInboundText. The participant
// never sees these; they reach gateways and the websocket error field.
func conversationError(err error) apiError {
	switch {
	case errors.Is(err, services.ErrEmptyIdentifier):
		return apiError{http.StatusBadRequest, ErrCodeBadRequest, "identifier and text are required"}
	case errors.Is(err, services.ErrPersistence):
		return apiError{http.StatusServiceUnavailable, ErrCodePersistenceFailed, "could not store the event, retry later"}
	case errors.Is(err, services.ErrUnknownState):
		return apiError{http.StatusInternalServerError, ErrCodeUnknownState, "participant state is invalid"}
	default:
		return apiError{http.StatusInternalServerError, ErrCodeInternal, "could not process the event"}
	}
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get(middleware.RequestIDHeader),
		Code:      code,
		Message:   msg,
	})
}

func failWith(c *gin.Context, e apiError) { fail(c, e.Status, e.Code, e.Message) }

// Fail is fail for the router's NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
