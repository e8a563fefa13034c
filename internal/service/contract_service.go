package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/config"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

type contractRepository interface {
	Create(ctx context.Context, contract *models.Contract) error
	FindByID(ctx context.Context, id string) (*models.Contract, error)
	ExistsForNegotiation(ctx context.Context, negotiationID string) (bool, error)
	List(ctx context.Context, filter models.ContractFilter) ([]models.Contract, int, error)
	UpdateDraftTerms(ctx context.Context, contract *models.Contract) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ContractStatus) (bool, error)
	SetApprovalDeadline(ctx context.Context, id string, deadline time.Time) error
	SetSignature(ctx context.Context, id string, role models.SignerRole, sig models.Signature) (bool, error)
	SetSignatureRef(ctx context.Context, id string, role models.SignerRole, ref string) error
	Activate(ctx context.Context, id string, at time.Time) (bool, error)
	Cancel(ctx context.Context, id, reason string, from []models.ContractStatus) (bool, error)
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)
	CountByStatus(ctx context.Context, userID string) (map[models.ContractStatus]int, error)
}

type negotiationReader interface {
	FindByID(ctx context.Context, id string) (*models.Negotiation, error)
}

type scheduleEngine interface {
	Create(ctx context.Context, contract *models.Contract, terms models.PaymentTerms, anchor time.Time) (*models.PaymentSchedule, error)
	Activate(ctx context.Context, contractID string) error
	Cancel(ctx context.Context, contractID string) error
	DeletePending(ctx context.Context, contractID string) (bool, error)
	Get(ctx context.Context, id string) (*models.PaymentSchedule, error)
	GetByContract(ctx context.Context, contractID string) (*models.PaymentSchedule, error)
	RecordPayment(ctx context.Context, scheduleID string, req RecordPaymentRequest) (*models.PaymentSchedule, error)
}

type signatureLedger interface {
	BeginSigning(ctx context.Context, contractID, signerID string, role models.SignerRole) (*SigningSession, error)
	RecordAttempt(ctx context.Context, contractID, signerID string, role models.SignerRole, verified bool, audit AttemptAudit) (*models.SignatureAuditRecord, error)
	RecordAutoSign(ctx context.Context, contract *models.Contract, audit AttemptAudit) (*models.SignatureAuditRecord, error)
}

type otpVerifier interface {
	Verify(ctx context.Context, handle, code string) (*OTPResult, error)
}

type engagementActivator interface {
	Activate(ctx context.Context, contract *models.Contract) error
}

type notifier interface {
	Notify(userID, eventType string, data map[string]interface{})
}

// CreateContractRequest describes contract creation by a tutor.
type CreateContractRequest struct {
	NegotiationID    string               `json:"negotiation_id" validate:"required"`
	PricePerSession  int64                `json:"price_per_session" validate:"required,gt=0"`
	SessionDuration  int                  `json:"session_duration_min" validate:"required,gt=0"`
	SessionCount     int                  `json:"session_count" validate:"required,gt=0"`
	PaymentMethod    models.PaymentMethod `json:"payment_method" validate:"required,oneof=FULL_PAYMENT INSTALLMENTS"`
	InstallmentCount int                  `json:"installment_count" validate:"omitempty,min=1"`
	DownPayment      int64                `json:"down_payment" validate:"omitempty,min=0"`
	FirstPaymentPct  int                  `json:"first_payment_pct" validate:"omitempty,min=0,max=100"`
	ConsentText      string               `json:"consent_text"`
}

// UpdateDraftRequest carries free edits to a DRAFT contract.
type UpdateDraftRequest struct {
	PricePerSession  int64                `json:"price_per_session" validate:"required,gt=0"`
	SessionDuration  int                  `json:"session_duration_min" validate:"required,gt=0"`
	SessionCount     int                  `json:"session_count" validate:"required,gt=0"`
	PaymentMethod    models.PaymentMethod `json:"payment_method" validate:"required,oneof=FULL_PAYMENT INSTALLMENTS"`
	InstallmentCount int                  `json:"installment_count" validate:"omitempty,min=1"`
	DownPayment      int64                `json:"down_payment" validate:"omitempty,min=0"`
	FirstPaymentPct  int                  `json:"first_payment_pct" validate:"omitempty,min=0,max=100"`
}

// ApprovalRequest carries the student's response to a submitted contract.
type ApprovalRequest struct {
	Action models.ApprovalAction `json:"action" validate:"required,oneof=APPROVE REJECT REQUEST_CHANGES"`
	Reason string                `json:"reason"`
}

// SignRequest carries an OTP verification attempt.
type SignRequest struct {
	Handle      string `json:"handle" validate:"required"`
	Code        string `json:"code" validate:"required"`
	ConsentText string `json:"consent_text" validate:"required"`
}

// ClientMeta carries request-side evidence for the audit trail.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// ContractService owns the contract state machine. All collaborators are
// injected; after its own transition commits, downstream failures are
// logged and never rolled back.
type ContractService struct {
	repo         contractRepository
	negotiations negotiationReader
	schedules    scheduleEngine
	signatures   signatureLedger
	otp          otpVerifier
	engagement   engagementActivator
	notify       notifier
	metrics      *MetricsService
	cache        *redis.Client
	cfg          config.ContractsConfig
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewContractService constructs ContractService.
func NewContractService(
	repo contractRepository,
	negotiations negotiationReader,
	schedules scheduleEngine,
	signatures signatureLedger,
	otp otpVerifier,
	engagement engagementActivator,
	notify notifier,
	metrics *MetricsService,
	cache *redis.Client,
	cfg config.ContractsConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *ContractService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContractService{
		repo:         repo,
		negotiations: negotiations,
		schedules:    schedules,
		signatures:   signatures,
		otp:          otp,
		engagement:   engagement,
		notify:       notify,
		metrics:      metrics,
		cache:        cache,
		cfg:          cfg,
		validator:    validate,
		logger:       logger,
	}
}

// Create builds a contract from an accepted negotiation owned by the tutor.
// Under the auto-sign policy the tutor's signature is applied immediately
// and the contract goes straight to PENDING_STUDENT_APPROVAL.
func (s *ContractService) Create(ctx context.Context, tutorID string, req CreateContractRequest, meta ClientMeta) (*models.Contract, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contract payload")
	}

	negotiation, err := s.negotiations.FindByID(ctx, req.NegotiationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "negotiation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load negotiation")
	}
	if negotiation.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "negotiation belongs to another tutor")
	}
	if negotiation.Status != models.NegotiationStatusAccepted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "negotiation is not accepted")
	}

	exists, err := s.repo.ExistsForNegotiation(ctx, req.NegotiationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing contract")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "contract already exists for negotiation")
	}

	contract := &models.Contract{
		NegotiationID:    negotiation.ID,
		StudentID:        negotiation.StudentID,
		TutorID:          negotiation.TutorID,
		SubjectID:        negotiation.SubjectID,
		PricePerSession:  req.PricePerSession,
		SessionDuration:  req.SessionDuration,
		SessionCount:     req.SessionCount,
		TotalAmount:      req.PricePerSession * int64(req.SessionCount),
		PaymentMethod:    req.PaymentMethod,
		InstallmentCount: req.InstallmentCount,
		DownPayment:      req.DownPayment,
		FirstPaymentPct:  req.FirstPaymentPct,
		Status:           models.ContractStatusDraft,
	}

	// Validate the terms up front so a broken split never reaches approval.
	if _, err := CalculateInstallments(contract.TotalAmount, InstallmentTerms{
		PaymentMethod:    contract.PaymentMethod,
		InstallmentCount: contract.InstallmentCount,
		DownPayment:      contract.DownPayment,
		FirstPaymentPct:  contract.FirstPaymentPct,
		AnchorDate:       time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if s.cfg.AutoSignTutor {
		now := time.Now().UTC()
		evidence := models.EvidenceAutoSigned
		contract.Status = models.ContractStatusPendingStudentApproval
		contract.TutorSignedAt = &now
		contract.TutorSignIP = &meta.IPAddress
		contract.TutorEvidence = &evidence
		deadline := now.Add(s.cfg.ApprovalDeadline)
		contract.ApprovalDeadline = &deadline
	}

	if err := s.repo.Create(ctx, contract); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create contract")
	}

	if s.cfg.AutoSignTutor {
		record, err := s.signatures.RecordAutoSign(ctx, contract, AttemptAudit{
			IPAddress:   meta.IPAddress,
			UserAgent:   meta.UserAgent,
			ConsentText: req.ConsentText,
		})
		if err != nil {
			s.logger.Sugar().Errorw("auto-sign audit record failed", "contract_id", contract.ID, "error", err)
		} else {
			ref := record.ID
			contract.TutorSigRef = &ref
			if err := s.repo.SetSignatureRef(ctx, contract.ID, models.SignerRoleTutor, record.ID); err != nil {
				s.logger.Sugar().Errorw("auto-sign reference not persisted", "contract_id", contract.ID, "error", err)
			}
		}
	}

	if contract.PaymentMethod == models.PaymentMethodInstallments {
		if _, err := s.schedules.Create(ctx, contract, s.defaultTerms(), time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	if contract.Status == models.ContractStatusPendingStudentApproval {
		s.notify.Notify(contract.StudentID, EventContractSubmitted, map[string]interface{}{"contract_id": contract.ID})
	}
	s.metrics.ObserveContractCreated()
	s.invalidateStats(ctx, contract.StudentID, contract.TutorID)
	return contract, nil
}

// UpdateDraft applies free edits to a DRAFT contract. totalAmount is
// recomputed here and frozen once the contract leaves DRAFT.
func (s *ContractService) UpdateDraft(ctx context.Context, contractID, tutorID string, req UpdateDraftRequest) (*models.Contract, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contract payload")
	}
	contract, err := s.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only the authoring tutor may edit a draft")
	}

	contract.PricePerSession = req.PricePerSession
	contract.SessionDuration = req.SessionDuration
	contract.SessionCount = req.SessionCount
	contract.TotalAmount = req.PricePerSession * int64(req.SessionCount)
	contract.PaymentMethod = req.PaymentMethod
	contract.InstallmentCount = req.InstallmentCount
	contract.DownPayment = req.DownPayment
	contract.FirstPaymentPct = req.FirstPaymentPct

	if _, err := CalculateInstallments(contract.TotalAmount, InstallmentTerms{
		PaymentMethod:    contract.PaymentMethod,
		InstallmentCount: contract.InstallmentCount,
		DownPayment:      contract.DownPayment,
		FirstPaymentPct:  contract.FirstPaymentPct,
		AnchorDate:       time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateDraftTerms(ctx, contract)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update draft")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract is no longer editable")
	}

	// Edited terms invalidate any previously derived schedule: drop the
	// PENDING one and re-derive so the installments sum to the new total.
	if _, err := s.schedules.DeletePending(ctx, contractID); err != nil {
		return nil, err
	}
	if contract.PaymentMethod == models.PaymentMethodInstallments {
		if _, err := s.schedules.Create(ctx, contract, s.defaultTerms(), time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, contractID)
}

// SubmitForApproval moves a DRAFT contract to the student's queue.
func (s *ContractService) SubmitForApproval(ctx context.Context, contractID, tutorID string) (*models.Contract, error) {
	contract, err := s.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.TutorID != tutorID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only the authoring tutor may submit")
	}
	moved, err := s.repo.UpdateStatus(ctx, contractID, models.ContractStatusDraft, models.ContractStatusPendingStudentApproval)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit contract")
	}
	if !moved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only draft contracts can be submitted")
	}
	deadline := time.Now().UTC().Add(s.cfg.ApprovalDeadline)
	if err := s.repo.SetApprovalDeadline(ctx, contractID, deadline); err != nil {
		s.logger.Sugar().Warnw("approval deadline not stamped", "contract_id", contractID, "error", err)
	}
	s.notify.Notify(contract.StudentID, EventContractSubmitted, map[string]interface{}{"contract_id": contractID})
	return s.load(ctx, contractID)
}

// RespondToApproval applies the student's decision on a submitted contract.
func (s *ContractService) RespondToApproval(ctx context.Context, contractID, studentID string, req ApprovalRequest) (*models.Contract, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	contract, err := s.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only the contract's student may respond")
	}
	if contract.Status != models.ContractStatusPendingStudentApproval {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract is not awaiting student approval")
	}

	switch req.Action {
	case models.ApprovalActionApprove:
		moved, err := s.repo.UpdateStatus(ctx, contractID, models.ContractStatusPendingStudentApproval, models.ContractStatusApproved)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve contract")
		}
		if !moved {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract is not awaiting student approval")
		}
		if err := s.ensureSchedule(ctx, contract); err != nil {
			return nil, err
		}
		s.notify.Notify(contract.TutorID, EventContractApproved, map[string]interface{}{"contract_id": contractID})

	case models.ApprovalActionReject:
		cancelled, err := s.repo.Cancel(ctx, contractID, req.Reason, []models.ContractStatus{models.ContractStatusPendingStudentApproval})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject contract")
		}
		if !cancelled {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract is not awaiting student approval")
		}
		if err := s.schedules.Cancel(ctx, contractID); err != nil {
			s.logger.Sugar().Errorw("schedule cancel after rejection failed", "contract_id", contractID, "error", err)
		}
		s.notify.Notify(contract.TutorID, EventContractRejected, map[string]interface{}{"contract_id": contractID, "reason": req.Reason})

	case models.ApprovalActionRequestChanges:
		moved, err := s.repo.UpdateStatus(ctx, contractID, models.ContractStatusPendingStudentApproval, models.ContractStatusDraft)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request changes")
		}
		if !moved {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract is not awaiting student approval")
		}
		s.notify.Notify(contract.TutorID, EventContractChanges, map[string]interface{}{"contract_id": contractID, "reason": req.Reason})
	}

	s.invalidateStats(ctx, contract.StudentID, contract.TutorID)
	return s.load(ctx, contractID)
}

// BeginSigning issues an OTP challenge for one party. The ledger performs
// the permission and state gating.
func (s *ContractService) BeginSigning(ctx context.Context, contractID, userID string, role models.SignerRole) (*SigningSession, error) {
	return s.signatures.BeginSigning(ctx, contractID, userID, role)
}

// VerifyAndSign verifies the OTP, records the audit row, fills the
// signature slot and, once both parties have signed, runs the one-time
// activation. The activation UPDATE is conditional on the pre-transition
// state, so two concurrent last-signer requests resolve to a single winner;
// the loser observes the ACTIVE contract and returns the same success.
func (s *ContractService) VerifyAndSign(ctx context.Context, contractID, userID string, role models.SignerRole, req SignRequest, meta ClientMeta) (*models.Contract, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signing payload")
	}
	contract, err := s.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.PartyID(role) != userID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "signer does not hold this role on the contract")
	}

	// A duplicate request after activation short-circuits to success.
	if contract.Status == models.ContractStatusActive && contract.SignatureFor(role) != nil {
		return contract, nil
	}
	if contract.Status != models.ContractStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract is not open for signing")
	}

	result, err := s.otp.Verify(ctx, req.Handle, req.Code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify code")
	}

	record, err := s.signatures.RecordAttempt(ctx, contractID, userID, role, result.Matched, AttemptAudit{
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		ConsentText: req.ConsentText,
		OTPHash:     result.OTPHash,
	})
	if err != nil {
		return nil, err
	}
	if !result.Matched {
		return nil, appErrors.Clone(appErrors.ErrVerificationFailed, "")
	}

	sig := models.Signature{
		SignedAt:     time.Now().UTC(),
		IPAddress:    meta.IPAddress,
		SignatureRef: record.ID,
		Evidence:     models.EvidenceOTPVerified,
	}
	set, err := s.repo.SetSignature(ctx, contractID, role, sig)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set signature")
	}
	if set {
		s.metrics.ObserveContractSigned(string(role))
		s.notify.Notify(contract.PartyID(otherRole(role)), EventContractSigned, map[string]interface{}{
			"contract_id": contractID,
			"signed_by":   string(role),
		})
	}

	if err := s.tryActivate(ctx, contractID); err != nil {
		return nil, err
	}
	return s.load(ctx, contractID)
}

// tryActivate runs the atomic both-signatures check-and-transition. Only
// the caller whose conditional UPDATE lands executes the one-time side
// effects; everyone else sees zero rows and walks away.
func (s *ContractService) tryActivate(ctx context.Context, contractID string) error {
	now := time.Now().UTC()
	won, err := s.repo.Activate(ctx, contractID, now)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate contract")
	}
	if !won {
		return nil
	}

	contract, err := s.load(ctx, contractID)
	if err != nil {
		return err
	}

	// The contract is the source of truth from here on: collaborator
	// failures are logged, never rolled back.
	if err := s.schedules.Activate(ctx, contractID); err != nil {
		s.logger.Sugar().Errorw("schedule activation failed", "contract_id", contractID, "error", err)
	}
	if err := s.engagement.Activate(ctx, contract); err != nil {
		s.logger.Sugar().Errorw("engagement activation failed", "contract_id", contractID, "error", err)
	}
	s.notify.Notify(contract.StudentID, EventContractActivated, map[string]interface{}{"contract_id": contractID})
	s.notify.Notify(contract.TutorID, EventContractActivated, map[string]interface{}{"contract_id": contractID})
	s.metrics.ObserveContractActivated()
	s.invalidateStats(ctx, contract.StudentID, contract.TutorID)
	s.logger.Sugar().Infow("contract fully signed", "contract_id", contractID)
	return nil
}

// Cancel terminates a contract before activation and cascades to its
// schedule. Re-cancelling an already cancelled contract is a no-op so the
// whole operation is retry-safe.
func (s *ContractService) Cancel(ctx context.Context, contractID, userID, reason string) (*models.Contract, error) {
	contract, err := s.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.IsParty(userID) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "")
	}

	cancellable := []models.ContractStatus{
		models.ContractStatusDraft,
		models.ContractStatusPendingStudentApproval,
		models.ContractStatusApproved,
	}
	cancelled, err := s.repo.Cancel(ctx, contractID, reason, cancellable)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel contract")
	}
	if !cancelled {
		current, err := s.load(ctx, contractID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.ContractStatusCancelled {
			return current, nil
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "contract can no longer be cancelled")
	}

	if err := s.schedules.Cancel(ctx, contractID); err != nil {
		s.logger.Sugar().Errorw("schedule cancel failed", "contract_id", contractID, "error", err)
	}

	other := contract.TutorID
	if userID == contract.TutorID {
		other = contract.StudentID
	}
	s.notify.Notify(other, EventContractCancelled, map[string]interface{}{"contract_id": contractID, "reason": reason})
	s.invalidateStats(ctx, contract.StudentID, contract.TutorID)
	return s.load(ctx, contractID)
}

// RecordPayment settles an installment through the schedule engine and
// completes the contract once its schedule is fully settled.
func (s *ContractService) RecordPayment(ctx context.Context, scheduleID, userID string, req RecordPaymentRequest) (*models.PaymentSchedule, error) {
	current, err := s.schedules.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !current.IsParty(userID) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "")
	}

	schedule, err := s.schedules.RecordPayment(ctx, scheduleID, req)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePaymentRecorded(req.Amount)
	s.notify.Notify(schedule.TutorID, EventPaymentRecorded, map[string]interface{}{
		"schedule_id": scheduleID,
		"number":      req.InstallmentNumber,
		"amount":      req.Amount,
	})

	if schedule.Status == models.ScheduleStatusCompleted {
		done, err := s.repo.Complete(ctx, schedule.ContractID, time.Now().UTC())
		if err != nil {
			s.logger.Sugar().Errorw("contract completion failed", "contract_id", schedule.ContractID, "error", err)
		} else if done {
			s.notify.Notify(schedule.StudentID, EventContractCompleted, map[string]interface{}{"contract_id": schedule.ContractID})
			s.notify.Notify(schedule.TutorID, EventContractCompleted, map[string]interface{}{"contract_id": schedule.ContractID})
			s.invalidateStats(ctx, schedule.StudentID, schedule.TutorID)
		}
	}
	return schedule, nil
}

// ExpireStale applies the deadline policy: pre-active contracts past their
// approval deadline become EXPIRED and their schedules are cancelled.
func (s *ContractService) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire contracts")
	}
	for _, id := range ids {
		if err := s.schedules.Cancel(ctx, id); err != nil {
			s.logger.Sugar().Errorw("schedule cancel after expiry failed", "contract_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		s.metrics.ObserveContractsExpired(len(ids))
		s.logger.Sugar().Infow("contracts expired", "count", len(ids))
	}
	return len(ids), nil
}

// Get returns a contract visible to the caller.
func (s *ContractService) Get(ctx context.Context, contractID, callerID string, callerRole models.UserRole) (*models.Contract, error) {
	contract, err := s.load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if callerRole != models.RoleAdmin && !contract.IsParty(callerID) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "")
	}
	return contract, nil
}

// List returns contracts with pagination metadata. Non-admin callers are
// pinned to their own side of the filter.
func (s *ContractService) List(ctx context.Context, filter models.ContractFilter, callerID string, callerRole models.UserRole) ([]models.Contract, *models.Pagination, error) {
	switch callerRole {
	case models.RoleTutor:
		filter.TutorID = callerID
	case models.RoleStudent:
		filter.StudentID = callerID
	}
	contracts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contracts")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return contracts, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Stats returns per-party contract counts, cached briefly in redis.
func (s *ContractService) Stats(ctx context.Context, userID string) (*models.ContractStats, error) {
	key := "contract_stats:" + userID
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var stats models.ContractStats
			if json.Unmarshal([]byte(raw), &stats) == nil {
				return &stats, nil
			}
		}
	}

	counts, err := s.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract stats")
	}
	stats := &models.ContractStats{
		Draft:     counts[models.ContractStatusDraft],
		Pending:   counts[models.ContractStatusPendingStudentApproval],
		Active:    counts[models.ContractStatusActive],
		Completed: counts[models.ContractStatusCompleted],
		Cancelled: counts[models.ContractStatusCancelled] + counts[models.ContractStatusExpired],
	}
	for _, n := range counts {
		stats.Total += n
	}

	if s.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			ttl := s.cfg.StatsCacheTTL
			if ttl <= 0 {
				ttl = 5 * time.Minute
			}
			_ = s.cache.Set(ctx, key, raw, ttl).Err()
		}
	}
	return stats, nil
}

func (s *ContractService) load(ctx context.Context, contractID string) (*models.Contract, error) {
	contract, err := s.repo.FindByID(ctx, contractID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	return contract, nil
}

// ensureSchedule creates the schedule when approval happens before one
// exists (full-payment contracts defer creation until approval).
func (s *ContractService) ensureSchedule(ctx context.Context, contract *models.Contract) error {
	if _, err := s.schedules.GetByContract(ctx, contract.ID); err == nil {
		return nil
	}
	if _, err := s.schedules.Create(ctx, contract, s.defaultTerms(), time.Now().UTC()); err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrDuplicate.Code {
			return nil
		}
		return err
	}
	return nil
}

func (s *ContractService) defaultTerms() models.PaymentTerms {
	return models.PaymentTerms{
		LateFeePct:       s.cfg.DefaultLateFeePct,
		GracePeriodDays:  s.cfg.DefaultGraceDays,
		RefundPct:        s.cfg.DefaultRefundPct,
		MinimumNoticeDay: s.cfg.DefaultNoticeDays,
	}
}

func (s *ContractService) invalidateStats(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, id := range userIDs {
		_ = s.cache.Del(ctx, "contract_stats:"+id).Err()
	}
}

func otherRole(role models.SignerRole) models.SignerRole {
	if role == models.SignerRoleTutor {
		return models.SignerRoleStudent
	}
	return models.SignerRoleTutor
}
