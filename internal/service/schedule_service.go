package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/repository"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

type scheduleRepository interface {
	Create(ctx context.Context, schedule *models.PaymentSchedule) error
	FindByID(ctx context.Context, id string) (*models.PaymentSchedule, error)
	FindByContract(ctx context.Context, contractID string) (*models.PaymentSchedule, error)
	ExistsForContract(ctx context.Context, contractID string) (bool, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.PaymentSchedule, int, error)
	Activate(ctx context.Context, contractID string) (bool, error)
	Cancel(ctx context.Context, contractID string) (bool, error)
	DeletePending(ctx context.Context, contractID string) (bool, error)
	RecordPayment(ctx context.Context, scheduleID string, number int, amount int64, method, transactionRef string) (*models.PaymentSchedule, error)
	ApplyOverdue(ctx context.Context, scheduleID string, numbers []int, markSchedule bool) error
	UpcomingDue(ctx context.Context, from, to time.Time) ([]models.Installment, error)
}

// RecordPaymentRequest describes an installment settlement.
type RecordPaymentRequest struct {
	InstallmentNumber int    `json:"installment_number" validate:"required,min=1"`
	Amount            int64  `json:"amount" validate:"required,gt=0"`
	Method            string `json:"method" validate:"required"`
	TransactionRef    string `json:"transaction_ref" validate:"required"`
}

// ScheduleService owns the payment-schedule aggregate: derivation from
// contract terms, installment lifecycle and the overdue sweep. It never
// calls notification or gateway collaborators itself; the contract
// lifecycle triggers those after a successful mutation.
type ScheduleService struct {
	repo      scheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs ScheduleService.
func NewScheduleService(repo scheduleRepository, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, validator: validate, logger: logger}
}

// Create derives the installment sequence for a contract and persists the
// schedule in PENDING status.
func (s *ScheduleService) Create(ctx context.Context, contract *models.Contract, terms models.PaymentTerms, anchor time.Time) (*models.PaymentSchedule, error) {
	exists, err := s.repo.ExistsForContract(ctx, contract.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing schedule")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "schedule already exists for contract")
	}

	specs, err := CalculateInstallments(contract.TotalAmount, InstallmentTerms{
		PaymentMethod:    contract.PaymentMethod,
		InstallmentCount: contract.InstallmentCount,
		DownPayment:      contract.DownPayment,
		FirstPaymentPct:  contract.FirstPaymentPct,
		AnchorDate:       anchor,
	})
	if err != nil {
		return nil, err
	}

	schedule := &models.PaymentSchedule{
		ContractID:    contract.ID,
		StudentID:     contract.StudentID,
		TutorID:       contract.TutorID,
		TotalAmount:   contract.TotalAmount,
		PaymentMethod: contract.PaymentMethod,
		Status:        models.ScheduleStatusPending,
		PaymentTerms:  terms,
	}
	schedule.Installments = make([]models.Installment, len(specs))
	for i, spec := range specs {
		schedule.Installments[i] = models.Installment{
			Number:        spec.Number,
			SessionNumber: spec.SessionNumber,
			Amount:        spec.Amount,
			DueDate:       spec.DueDate,
			Status:        models.InstallmentStatusPending,
		}
	}
	first := specs[0].DueDate
	last := specs[len(specs)-1].DueDate
	schedule.FirstDueDate = &first
	schedule.LastDueDate = &last

	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	return schedule, nil
}

// Activate transitions the contract's schedule PENDING -> ACTIVE. Already
// active is a no-op so a retried signing flow stays safe.
func (s *ScheduleService) Activate(ctx context.Context, contractID string) error {
	if _, err := s.repo.Activate(ctx, contractID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate schedule")
	}
	return nil
}

// Cancel marks the schedule and its unpaid installments CANCELLED.
// No-op when the contract has no schedule or it is already terminal.
func (s *ScheduleService) Cancel(ctx context.Context, contractID string) error {
	if _, err := s.repo.Cancel(ctx, contractID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel schedule")
	}
	return nil
}

// DeletePending drops a not-yet-activated schedule so edited draft terms
// can be re-derived. No-op when the contract has no PENDING schedule.
func (s *ScheduleService) DeletePending(ctx context.Context, contractID string) (bool, error) {
	deleted, err := s.repo.DeletePending(ctx, contractID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete pending schedule")
	}
	if deleted {
		s.logger.Sugar().Infow("pending schedule dropped for re-derivation", "contract_id", contractID)
	}
	return deleted, nil
}

// GetByContract returns the schedule for a contract, sweeping overdue
// installments on the way out.
func (s *ScheduleService) GetByContract(ctx context.Context, contractID string) (*models.PaymentSchedule, error) {
	schedule, err := s.repo.FindByContract(ctx, contractID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if err := s.sweepAndPersist(ctx, schedule, time.Now().UTC()); err != nil {
		return nil, err
	}
	return schedule, nil
}

// Get returns a schedule by id, sweeping overdue installments on the way out.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.PaymentSchedule, error) {
	schedule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if err := s.sweepAndPersist(ctx, schedule, time.Now().UTC()); err != nil {
		return nil, err
	}
	return schedule, nil
}

// List returns schedules with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.PaymentSchedule, *models.Pagination, error) {
	schedules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return schedules, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// RecordPayment settles one installment. The amount must match exactly:
// partial installment payments are not supported.
func (s *ScheduleService) RecordPayment(ctx context.Context, scheduleID string, req RecordPaymentRequest) (*models.PaymentSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	schedule, err := s.repo.RecordPayment(ctx, scheduleID, req.InstallmentNumber, req.Amount, req.Method, req.TransactionRef)
	if err != nil {
		switch {
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "installment not found")
		case errors.Is(err, repository.ErrInstallmentNotPayable):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "installment is not open for payment")
		case errors.Is(err, repository.ErrPaymentAmountMismatch):
			return nil, appErrors.Clone(appErrors.ErrAmountMismatch, "")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
		}
	}
	s.logger.Sugar().Infow("installment paid",
		"schedule_id", scheduleID, "number", req.InstallmentNumber, "amount", req.Amount)
	return schedule, nil
}

// SweepOverdue reclassifies unpaid installments past their due date. It
// mutates the aggregate in memory and reports whether anything changed so
// the caller can decide about persistence.
func SweepOverdue(schedule *models.PaymentSchedule, now time.Time) bool {
	changed := false
	for i := range schedule.Installments {
		inst := &schedule.Installments[i]
		if inst.Status.Payable() && inst.DueDate.Before(now) {
			inst.Status = models.InstallmentStatusOverdue
			changed = true
		}
	}
	if changed && schedule.Status == models.ScheduleStatusActive {
		schedule.Status = models.ScheduleStatusOverdue
	}
	return changed
}

// UpcomingDue lists installments falling due within the window.
func (s *ScheduleService) UpcomingDue(ctx context.Context, within time.Duration) ([]models.Installment, error) {
	now := time.Now().UTC()
	installments, err := s.repo.UpcomingDue(ctx, now, now.Add(within))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming installments")
	}
	return installments, nil
}

func (s *ScheduleService) sweepAndPersist(ctx context.Context, schedule *models.PaymentSchedule, now time.Time) error {
	wasActive := schedule.Status == models.ScheduleStatusActive
	if !SweepOverdue(schedule, now) {
		return nil
	}
	var numbers []int
	for _, inst := range schedule.Installments {
		if inst.Status == models.InstallmentStatusOverdue {
			numbers = append(numbers, inst.Number)
		}
	}
	markSchedule := wasActive && schedule.Status == models.ScheduleStatusOverdue
	if err := s.repo.ApplyOverdue(ctx, schedule.ID, numbers, markSchedule); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist overdue sweep")
	}
	return nil
}
