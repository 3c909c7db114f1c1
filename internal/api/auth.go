package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zcc135820/imagebridge/internal/gateway"
	"github.com/zcc135820/imagebridge/internal/session"
	"github.com/zcc135820/imagebridge/internal/upstream"
)

// ErrorResponse is the JSON envelope returned for every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a human-readable message and an error category.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    errType,
	}})
}

// writeGatewayError maps a gateway failure onto an HTTP status. Parameter
// violations are the caller's fault; everything else is surfaced as a server
// error, with the upstream body attached when there is one.
func writeGatewayError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidParameter):
		writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
	case errors.Is(err, session.ErrSessionExpired):
		writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	default:
		var upErr *upstream.Error
		if errors.As(err, &upErr) {
			writeError(c, http.StatusInternalServerError, "upstream_error", upErr.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// authMiddleware enforces the static api-keys list from the active config.
// With no keys configured the surface is open; otherwise the caller must
// present one of them, exact match.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys := s.cfg.Load().APIKeys
		if len(keys) == 0 {
			c.Next()
			return
		}
		presented := bearerKey(c.Request)
		if presented != "" {
			for _, key := range keys {
				if key != "" && presented == key {
					c.Next()
					return
				}
			}
		}
		writeError(c, http.StatusUnauthorized, "authentication_error",
			"missing or invalid API key")
	}
}

// bearerKey extracts the caller's key from the Authorization header or the
// X-Api-Key fallback.
func bearerKey(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Key"))
}
