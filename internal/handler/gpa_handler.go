package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registration-api/internal/service"
	"github.com/noah-isme/sis-registration-api/pkg/response"
)

// GpaHandler exposes GPA projection endpoints.
type GpaHandler struct {
	gpa *service.GpaService
}

// NewGpaHandler constructs GpaHandler.
func NewGpaHandler(gpa *service.GpaService) *GpaHandler {
	return &GpaHandler{gpa: gpa}
}

// Summary godoc
// @Summary Get a student's GPA summary
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/gpa [get]
func (h *GpaHandler) Summary(c *gin.Context) {
	summary, err := h.gpa.GetGpaSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Refresh godoc
// @Summary Queue a recalculation of a student's GPA summary
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 202 {object} response.Envelope
// @Router /students/{id}/gpa/refresh [post]
func (h *GpaHandler) Refresh(c *gin.Context) {
	h.gpa.EnqueueRefresh(c.Param("id"))
	response.JSON(c, http.StatusAccepted, gin.H{"queued": true}, nil)
}
