package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/tidecast/mediapipe/internal/apperrors"
)

// respondError writes err as a JSON error body, using *apperrors.PipelineError's
// own HTTPStatus() when available (grounded on the teacher's
// ViewraError-aware handlers), else falling back to 500.
func respondError(c *gin.Context, err error) {
	var pe *apperrors.PipelineError
	if errors.As(err, &pe) {
		c.JSON(pe.HTTPStatus(), gin.H{"error": pe.Message, "code": string(pe.Code)})
		return
	}
	c.JSON(500, gin.H{"error": err.Error()})
}
