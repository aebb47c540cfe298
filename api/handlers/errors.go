package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/trackfetch-go/internal/domain"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrNoMatch):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrJobNotTerminal):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
