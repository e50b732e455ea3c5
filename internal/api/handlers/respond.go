package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loomnote/chat-backend/internal/apperr"
)

// respondError maps the error taxonomy onto HTTP status codes. Callers that
// need to branch (the UI) use the "code" field, not the status number.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindAuthentication:
		status = http.StatusUnauthorized
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindTenantSetup:
		status = http.StatusUnprocessableEntity
	case apperr.KindGateway:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"error": apperr.Message(err),
		"code":  apperr.KindOf(err).String(),
	})
}
