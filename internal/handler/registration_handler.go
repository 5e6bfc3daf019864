package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sis-registration-api/internal/models"
	"github.com/noah-isme/sis-registration-api/internal/service"
	appErrors "github.com/noah-isme/sis-registration-api/pkg/errors"
	"github.com/noah-isme/sis-registration-api/pkg/response"
)

// RegistrationHandler exposes registration lifecycle endpoints.
type RegistrationHandler struct {
	registrations *service.RegistrationService
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations}
}

// List godoc
// @Summary List registrations
// @Tags Registrations
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param sectionId query string false "Filter by section"
// @Param termId query string false "Filter by term"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrations [get]
func (h *RegistrationHandler) List(c *gin.Context) {
	var filter models.RegistrationFilter
	filter.StudentID = c.Query("studentId")
	filter.SectionID = c.Query("sectionId")
	filter.TermID = c.Query("termId")
	filter.Status = models.RegistrationStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	registrations, pagination, err := h.registrations.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registrations, pagination)
}

// Create godoc
// @Summary Register student into a section
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Create(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	registration, err := h.registrations.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// Override godoc
// @Summary Register past capacity or prerequisite checks
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.OverrideEnrollRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Router /registrations/override [post]
func (h *RegistrationHandler) Override(c *gin.Context) {
	var req service.OverrideEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	registration, err := h.registrations.OverrideEnroll(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// Drop godoc
// @Summary Drop a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/drop [post]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	registration, err := h.registrations.Drop(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// Withdraw godoc
// @Summary Withdraw from a registration
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body service.WithdrawRequest false "Withdrawal payload"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/withdraw [post]
func (h *RegistrationHandler) Withdraw(c *gin.Context) {
	var req service.WithdrawRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	registration, err := h.registrations.Withdraw(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// PostGrade godoc
// @Summary Record a final grade
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Registration ID"
// @Param payload body service.PostGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /registrations/{id}/grade [post]
func (h *RegistrationHandler) PostGrade(c *gin.Context) {
	var req service.PostGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	registration, err := h.registrations.PostGrade(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, registration, nil)
}

// ValidateCart godoc
// @Summary Validate a registration cart without committing
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.RegistrationCartRequest true "Cart payload"
// @Success 200 {object} response.Envelope
// @Router /registration-cart/validate [post]
func (h *RegistrationHandler) ValidateCart(c *gin.Context) {
	var req service.RegistrationCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.registrations.ValidateRegistrationCart(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RegisterCart godoc
// @Summary Register a whole cart atomically
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body service.RegistrationCartRequest true "Cart payload"
// @Success 201 {object} response.Envelope
// @Router /registration-cart/register [post]
func (h *RegistrationHandler) RegisterCart(c *gin.Context) {
	var req service.RegistrationCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	registrations, err := h.registrations.RegisterForSections(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registrations)
}

// JoinWaitlist godoc
// @Summary Join a section waitlist
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.WaitlistRequest true "Waitlist payload"
// @Success 201 {object} response.Envelope
// @Router /sections/{id}/waitlist [post]
func (h *RegistrationHandler) JoinWaitlist(c *gin.Context) {
	var req service.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.registrations.JoinWaitlist(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// LeaveWaitlist godoc
// @Summary Leave a section waitlist
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.WaitlistRequest true "Waitlist payload"
// @Success 204
// @Router /sections/{id}/waitlist [delete]
func (h *RegistrationHandler) LeaveWaitlist(c *gin.Context) {
	var req service.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.registrations.LeaveWaitlist(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListWaitlist godoc
// @Summary List a section's waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist [get]
func (h *RegistrationHandler) ListWaitlist(c *gin.Context) {
	entries, err := h.registrations.ListWaitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// CheckEligibility godoc
// @Summary Check a student's eligibility for a section
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/sections/{sectionId}/eligibility [get]
func (h *RegistrationHandler) CheckEligibility(c *gin.Context) {
	result, err := h.registrations.CheckEligibility(c.Request.Context(), c.Param("id"), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
