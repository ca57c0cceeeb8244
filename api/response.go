package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/appointments/engine"
	"github.com/Skryldev/appointments/models"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Fields  []string `json:"fields,omitempty"`
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}

// respondEngineError maps engine failures to HTTP statuses. Store failures
// never leak driver detail to the client.
func respondEngineError(c *gin.Context, err error) {
	var verr *models.ValidationError
	var serr *engine.StoreError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:  "validation failed",
			Fields: verr.Fields,
		})
	case errors.Is(err, engine.ErrInvalidStatus):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		respondError(c, http.StatusNotFound, "Appointment not found")
	case errors.As(err, &serr):
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "Database error")
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}
