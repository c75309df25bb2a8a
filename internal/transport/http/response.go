package http

import (
	"errors"
	"net/http"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: message, Code: code}})
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// writeError maps an error kind onto a status code. transientMsg replaces the
// store message so callers see a generic, retryable failure.
func writeError(c *gin.Context, log *logger.Logger, err error, transientMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyAwarded):
		respondError(c, http.StatusConflict, "already_awarded", err.Error())
	case errors.Is(err, domain.ErrConflict):
		respondError(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrValidation):
		respondError(c, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, domain.ErrTransientStore):
		log.Warn("store unavailable", "path", c.FullPath(), "error", err)
		if transientMsg == "" {
			transientMsg = "service unavailable"
		}
		respondError(c, http.StatusServiceUnavailable, "unavailable", transientMsg)
	default:
		log.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
