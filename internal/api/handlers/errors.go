package handlers

import (
	"errors"
	"net/http"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/pipeline"
	"github.com/andresuchdata/hydra-workflows/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNodeUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNodeRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}
