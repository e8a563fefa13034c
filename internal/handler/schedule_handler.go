package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/service"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/export"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/response"
)

// ScheduleHandler exposes payment schedule endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
	contracts *service.ContractService
	csv       *export.ScheduleCSV
}

// NewScheduleHandler constructs a schedule handler.
func NewScheduleHandler(schedules *service.ScheduleService, contracts *service.ContractService, csv *export.ScheduleCSV) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, contracts: contracts, csv: csv}
}

// Get godoc
// @Summary Get payment schedule detail
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	schedule, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role != models.RoleAdmin && !schedule.IsParty(claims.UserID) {
		response.Error(c, appErrors.ErrPermissionDenied)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// GetByContract godoc
// @Summary Get the schedule attached to a contract
// @Tags Schedules
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /contracts/{id}/schedule [get]
func (h *ScheduleHandler) GetByContract(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	schedule, err := h.schedules.GetByContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role != models.RoleAdmin && !schedule.IsParty(claims.UserID) {
		response.Error(c, appErrors.ErrPermissionDenied)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// List godoc
// @Summary List payment schedules
// @Tags Schedules
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.ScheduleFilter
	filter.Status = models.ScheduleStatus(c.Query("status"))
	switch claims.Role {
	case models.RoleTutor:
		filter.TutorID = claims.UserID
	case models.RoleStudent:
		filter.StudentID = claims.UserID
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	schedules, pagination, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, pagination)
}

// RecordPayment godoc
// @Summary Record an installment payment
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id}/payments [post]
func (h *ScheduleHandler) RecordPayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	schedule, err := h.contracts.RecordPayment(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// UpcomingDue godoc
// @Summary List installments falling due soon
// @Tags Schedules
// @Produce json
// @Param days query int false "Window in days"
// @Success 200 {object} response.Envelope
// @Router /schedules/upcoming [get]
func (h *ScheduleHandler) UpcomingDue(c *gin.Context) {
	days := 7
	if parsed, err := strconv.Atoi(c.DefaultQuery("days", "7")); err == nil && parsed > 0 {
		days = parsed
	}
	installments, err := h.schedules.UpcomingDue(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, installments, nil)
}

// ExportCSV godoc
// @Summary Export a schedule's installments as CSV
// @Tags Schedules
// @Produce text/csv
// @Param id path string true "Schedule ID"
// @Success 200 {file} binary
// @Router /schedules/{id}/export [get]
func (h *ScheduleHandler) ExportCSV(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	schedule, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role != models.RoleAdmin && !schedule.IsParty(claims.UserID) {
		response.Error(c, appErrors.ErrPermissionDenied)
		return
	}

	data, err := h.csv.Render(schedule)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render schedule"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="schedule-%s.csv"`, schedule.ID))
	c.Data(http.StatusOK, "text/csv", data)
}
