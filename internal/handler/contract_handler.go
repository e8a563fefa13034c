package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/service"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/export"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/response"
)

// ContractHandler exposes the contract lifecycle endpoints.
type ContractHandler struct {
	contracts  *service.ContractService
	signatures *service.SignatureService
	schedules  *service.ScheduleService
	pdf        *export.ContractPDF
}

// NewContractHandler constructs a contract handler.
func NewContractHandler(contracts *service.ContractService, signatures *service.SignatureService, schedules *service.ScheduleService, pdf *export.ContractPDF) *ContractHandler {
	return &ContractHandler{contracts: contracts, signatures: signatures, schedules: schedules, pdf: pdf}
}

// Create godoc
// @Summary Create contract from accepted negotiation
// @Tags Contracts
// @Accept json
// @Produce json
// @Param payload body service.CreateContractRequest true "Contract payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts [post]
func (h *ContractHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	contract, err := h.contracts.Create(c.Request.Context(), claims.UserID, req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, contract)
}

// UpdateDraft godoc
// @Summary Update a draft contract's terms
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param payload body service.UpdateDraftRequest true "Updated terms"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts/{id} [put]
func (h *ContractHandler) UpdateDraft(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	contract, err := h.contracts.UpdateDraft(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// Submit godoc
// @Summary Submit a draft contract for student approval
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts/{id}/submit [post]
func (h *ContractHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	contract, err := h.contracts.SubmitForApproval(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// Respond godoc
// @Summary Approve, reject or request changes on a contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param payload body service.ApprovalRequest true "Approval decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts/{id}/respond [post]
func (h *ContractHandler) Respond(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	contract, err := h.contracts.RespondToApproval(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// BeginSigning godoc
// @Summary Request a signing verification code
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts/{id}/sign/begin [post]
func (h *ContractHandler) BeginSigning(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.contracts.BeginSigning(c.Request.Context(), c.Param("id"), claims.UserID, signerRole(claims.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Sign godoc
// @Summary Verify the code and sign the contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Param payload body service.SignRequest true "Verification payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts/{id}/sign [post]
func (h *ContractHandler) Sign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	contract, err := h.contracts.VerifyAndSign(c.Request.Context(), c.Param("id"), claims.UserID, signerRole(claims.Role), req, clientMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// Cancel godoc
// @Summary Cancel a contract before activation
// @Tags Contracts
// @Accept json
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /contracts/{id}/cancel [post]
func (h *ContractHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&payload)

	contract, err := h.contracts.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// Get godoc
// @Summary Get contract detail
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /contracts/{id} [get]
func (h *ContractHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contract, nil)
}

// List godoc
// @Summary List contracts
// @Tags Contracts
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /contracts [get]
func (h *ContractHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.ContractFilter
	filter.Status = models.ContractStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	contracts, pagination, err := h.contracts.List(c.Request.Context(), filter, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contracts, pagination)
}

// Stats godoc
// @Summary Contract counts by status for the caller
// @Tags Contracts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /contracts/stats [get]
func (h *ContractHandler) Stats(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.contracts.Stats(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// AuditTrail godoc
// @Summary List signature audit records for a contract
// @Tags Contracts
// @Produce json
// @Param id path string true "Contract ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /contracts/{id}/signatures [get]
func (h *ContractHandler) AuditTrail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	records, err := h.signatures.ListByContract(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Download godoc
// @Summary Download the contract as PDF
// @Tags Contracts
// @Produce application/pdf
// @Param id path string true "Contract ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /contracts/{id}/download [get]
func (h *ContractHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	schedule, err := h.schedules.GetByContract(c.Request.Context(), contract.ID)
	if err != nil {
		if appErrors.FromError(err).Status != http.StatusNotFound {
			response.Error(c, err)
			return
		}
		schedule = nil
	}

	doc, err := h.pdf.Render(contract, schedule)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render contract"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="contract-%s.pdf"`, contract.ID))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// ExpireStale godoc
// @Summary Expire contracts past their approval deadline
// @Tags Contracts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /contracts/expire-stale [post]
func (h *ContractHandler) ExpireStale(c *gin.Context) {
	expired, err := h.contracts.ExpireStale(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"expired": expired}, nil)
}

func signerRole(role models.UserRole) models.SignerRole {
	if role == models.RoleTutor {
		return models.SignerRoleTutor
	}
	return models.SignerRoleStudent
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
