package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/config"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

type mockContractRepo struct {
	mu        sync.Mutex
	items     map[string]*models.Contract
	existing  map[string]bool
	activated int
}

func (m *mockContractRepo) Create(ctx context.Context, contract *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]*models.Contract)
	}
	if contract.ID == "" {
		contract.ID = "c-generated"
	}
	now := time.Now().UTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now
	cp := *contract
	m.items[contract.ID] = &cp
	return nil
}

func (m *mockContractRepo) FindByID(ctx context.Context, id string) (*models.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contract, ok := m.items[id]; ok {
		cp := *contract
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockContractRepo) ExistsForNegotiation(ctx context.Context, negotiationID string) (bool, error) {
	return m.existing[negotiationID], nil
}

func (m *mockContractRepo) List(ctx context.Context, filter models.ContractFilter) ([]models.Contract, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Contract
	for _, contract := range m.items {
		if filter.TutorID != "" && contract.TutorID != filter.TutorID {
			continue
		}
		if filter.StudentID != "" && contract.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *contract)
	}
	return out, len(out), nil
}

func (m *mockContractRepo) UpdateDraftTerms(ctx context.Context, contract *models.Contract) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[contract.ID]
	if !ok || current.Status != models.ContractStatusDraft {
		return false, nil
	}
	cp := *contract
	cp.Status = models.ContractStatusDraft
	m.items[contract.ID] = &cp
	return true, nil
}

func (m *mockContractRepo) UpdateStatus(ctx context.Context, id string, from, to models.ContractStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.items[id]
	if !ok || contract.Status != from {
		return false, nil
	}
	contract.Status = to
	return true, nil
}

func (m *mockContractRepo) SetApprovalDeadline(ctx context.Context, id string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contract, ok := m.items[id]; ok {
		contract.ApprovalDeadline = &deadline
	}
	return nil
}

func (m *mockContractRepo) SetSignature(ctx context.Context, id string, role models.SignerRole, sig models.Signature) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.items[id]
	if !ok || contract.Status != models.ContractStatusApproved {
		return false, nil
	}
	switch role {
	case models.SignerRoleStudent:
		if contract.StudentSignedAt != nil {
			return false, nil
		}
		contract.StudentSignedAt = &sig.SignedAt
		contract.StudentSignIP = &sig.IPAddress
		contract.StudentSigRef = &sig.SignatureRef
		contract.StudentEvidence = &sig.Evidence
	case models.SignerRoleTutor:
		if contract.TutorSignedAt != nil {
			return false, nil
		}
		contract.TutorSignedAt = &sig.SignedAt
		contract.TutorSignIP = &sig.IPAddress
		contract.TutorSigRef = &sig.SignatureRef
		contract.TutorEvidence = &sig.Evidence
	}
	return true, nil
}

func (m *mockContractRepo) SetSignatureRef(ctx context.Context, id string, role models.SignerRole, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	if role == models.SignerRoleTutor {
		contract.TutorSigRef = &ref
	} else {
		contract.StudentSigRef = &ref
	}
	return nil
}

func (m *mockContractRepo) Activate(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.items[id]
	if !ok || contract.Status != models.ContractStatusApproved {
		return false, nil
	}
	if contract.StudentSignedAt == nil || contract.TutorSignedAt == nil {
		return false, nil
	}
	contract.Status = models.ContractStatusActive
	contract.IsFullySigned = true
	contract.ActivatedAt = &at
	m.activated++
	return true, nil
}

func (m *mockContractRepo) Cancel(ctx context.Context, id, reason string, from []models.ContractStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.items[id]
	if !ok {
		return false, nil
	}
	for _, status := range from {
		if contract.Status == status {
			now := time.Now().UTC()
			contract.Status = models.ContractStatusCancelled
			contract.CancelledAt = &now
			contract.CancelReason = &reason
			return true, nil
		}
	}
	return false, nil
}

func (m *mockContractRepo) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contract, ok := m.items[id]
	if !ok || contract.Status != models.ContractStatusActive {
		return false, nil
	}
	contract.Status = models.ContractStatusCompleted
	contract.CompletedAt = &at
	return true, nil
}

func (m *mockContractRepo) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for id, contract := range m.items {
		if contract.Status != models.ContractStatusPendingStudentApproval && contract.Status != models.ContractStatusApproved {
			continue
		}
		if contract.ApprovalDeadline != nil && contract.ApprovalDeadline.Before(now) {
			contract.Status = models.ContractStatusExpired
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (m *mockContractRepo) CountByStatus(ctx context.Context, userID string) (map[models.ContractStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.ContractStatus]int)
	for _, contract := range m.items {
		if contract.StudentID == userID || contract.TutorID == userID {
			counts[contract.Status]++
		}
	}
	return counts, nil
}

type mockNegotiationReader struct {
	items map[string]*models.Negotiation
}

func (m *mockNegotiationReader) FindByID(ctx context.Context, id string) (*models.Negotiation, error) {
	if negotiation, ok := m.items[id]; ok {
		cp := *negotiation
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockScheduleEngine struct {
	mu        sync.Mutex
	created   []string
	activated []string
	cancelled []string
	deleted   []string
	schedules map[string]*models.PaymentSchedule
	payment   *models.PaymentSchedule
}

func (m *mockScheduleEngine) Create(ctx context.Context, contract *models.Contract, terms models.PaymentTerms, anchor time.Time) (*models.PaymentSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, contract.ID)
	schedule := &models.PaymentSchedule{
		ID:          "sch-" + contract.ID,
		ContractID:  contract.ID,
		TotalAmount: contract.TotalAmount,
		Status:      models.ScheduleStatusPending,
	}
	if m.schedules == nil {
		m.schedules = make(map[string]*models.PaymentSchedule)
	}
	m.schedules[contract.ID] = schedule
	return schedule, nil
}

func (m *mockScheduleEngine) DeletePending(ctx context.Context, contractID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[contractID]
	if !ok || schedule.Status != models.ScheduleStatusPending {
		return false, nil
	}
	delete(m.schedules, contractID)
	m.deleted = append(m.deleted, contractID)
	return true, nil
}

func (m *mockScheduleEngine) Activate(ctx context.Context, contractID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activated = append(m.activated, contractID)
	return nil
}

func (m *mockScheduleEngine) Cancel(ctx context.Context, contractID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, contractID)
	return nil
}

func (m *mockScheduleEngine) Get(ctx context.Context, id string) (*models.PaymentSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, schedule := range m.schedules {
		if schedule.ID == id {
			return schedule, nil
		}
	}
	if m.payment != nil && m.payment.ID == id {
		return m.payment, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
}

func (m *mockScheduleEngine) GetByContract(ctx context.Context, contractID string) (*models.PaymentSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if schedule, ok := m.schedules[contractID]; ok {
		return schedule, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
}

func (m *mockScheduleEngine) RecordPayment(ctx context.Context, scheduleID string, req RecordPaymentRequest) (*models.PaymentSchedule, error) {
	return m.payment, nil
}

type mockSignatureLedger struct {
	mu       sync.Mutex
	attempts []bool
	auto     int
}

func (m *mockSignatureLedger) BeginSigning(ctx context.Context, contractID, signerID string, role models.SignerRole) (*SigningSession, error) {
	return &SigningSession{Handle: "handle-1", ExpiresAt: time.Now().UTC().Add(5 * time.Minute)}, nil
}

func (m *mockSignatureLedger) RecordAttempt(ctx context.Context, contractID, signerID string, role models.SignerRole, verified bool, audit AttemptAudit) (*models.SignatureAuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, verified)
	return &models.SignatureAuditRecord{ID: "rec-1", ContractID: contractID, SignerID: signerID, Role: role}, nil
}

func (m *mockSignatureLedger) RecordAutoSign(ctx context.Context, contract *models.Contract, audit AttemptAudit) (*models.SignatureAuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auto++
	return &models.SignatureAuditRecord{ID: "rec-auto", ContractID: contract.ID}, nil
}

type mockOTPVerifier struct {
	matched bool
}

func (m *mockOTPVerifier) Verify(ctx context.Context, handle, code string) (*OTPResult, error) {
	return &OTPResult{Matched: m.matched, OTPHash: "hash"}, nil
}

type mockEngagement struct {
	mu    sync.Mutex
	calls int
}

func (m *mockEngagement) Activate(ctx context.Context, contract *models.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *mockNotifier) Notify(userID, eventType string, data map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
}

type contractServiceFixture struct {
	repo       *mockContractRepo
	negs       *mockNegotiationReader
	engine     *mockScheduleEngine
	ledger     *mockSignatureLedger
	otp        *mockOTPVerifier
	engagement *mockEngagement
	notifier   *mockNotifier
	service    *ContractService
}

func newContractServiceFixture(cfg config.ContractsConfig) *contractServiceFixture {
	f := &contractServiceFixture{
		repo: &mockContractRepo{existing: map[string]bool{}},
		negs: &mockNegotiationReader{items: map[string]*models.Negotiation{
			"n1": {ID: "n1", StudentID: "student-1", TutorID: "tutor-1", SubjectID: "subj-1", PricePerSession: 250000, SessionCount: 4, Status: models.NegotiationStatusAccepted},
		}},
		engine:     &mockScheduleEngine{},
		ledger:     &mockSignatureLedger{},
		otp:        &mockOTPVerifier{matched: true},
		engagement: &mockEngagement{},
		notifier:   &mockNotifier{},
	}
	f.service = NewContractService(
		f.repo, f.negs, f.engine, f.ledger, f.otp, f.engagement, f.notifier,
		nil, nil, cfg, validator.New(), zap.NewNop(),
	)
	return f
}

func defaultContractsConfig() config.ContractsConfig {
	return config.ContractsConfig{
		ApprovalDeadline: 7 * 24 * time.Hour,
		StatsCacheTTL:    time.Minute,
	}
}

func TestContractServiceCreateDraft(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())

	contract, err := f.service.Create(context.Background(), "tutor-1", CreateContractRequest{
		NegotiationID:   "n1",
		PricePerSession: 250000,
		SessionDuration: 90,
		SessionCount:    4,
		PaymentMethod:   models.PaymentMethodFull,
	}, ClientMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, contract.Status)
	assert.Equal(t, int64(1000000), contract.TotalAmount)
	assert.Nil(t, contract.TutorSignedAt)
	assert.Empty(t, f.engine.created)
}

func TestContractServiceCreateAutoSign(t *testing.T) {
	cfg := defaultContractsConfig()
	cfg.AutoSignTutor = true
	f := newContractServiceFixture(cfg)

	contract, err := f.service.Create(context.Background(), "tutor-1", CreateContractRequest{
		NegotiationID:    "n1",
		PricePerSession:  250000,
		SessionDuration:  90,
		SessionCount:     4,
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 4,
		ConsentText:      "I agree",
	}, ClientMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusPendingStudentApproval, contract.Status)
	require.NotNil(t, contract.TutorSignedAt)
	assert.Equal(t, models.EvidenceAutoSigned, *contract.TutorEvidence)
	assert.NotNil(t, contract.ApprovalDeadline)
	assert.Equal(t, 1, f.ledger.auto)
	assert.Equal(t, []string{contract.ID}, f.engine.created)
	assert.Contains(t, f.notifier.events, EventContractSubmitted)

	// The audit reference is written back, not just returned.
	require.NotNil(t, contract.TutorSigRef)
	stored, err := f.repo.FindByID(context.Background(), contract.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TutorSigRef)
	assert.Equal(t, *contract.TutorSigRef, *stored.TutorSigRef)
}

func TestContractServiceUpdateDraftRederivesSchedule(t *testing.T) {
	cfg := defaultContractsConfig()
	cfg.AutoSignTutor = true
	f := newContractServiceFixture(cfg)

	contract, err := f.service.Create(context.Background(), "tutor-1", CreateContractRequest{
		NegotiationID:    "n1",
		PricePerSession:  250000,
		SessionDuration:  90,
		SessionCount:     4,
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 4,
	}, ClientMeta{})
	require.NoError(t, err)

	// Student pushes back, tutor raises the price and resubmits.
	_, err = f.service.RespondToApproval(context.Background(), contract.ID, "student-1", ApprovalRequest{Action: models.ApprovalActionRequestChanges, Reason: "price"})
	require.NoError(t, err)

	updated, err := f.service.UpdateDraft(context.Background(), contract.ID, "tutor-1", UpdateDraftRequest{
		PricePerSession:  300000,
		SessionDuration:  90,
		SessionCount:     4,
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), updated.TotalAmount)
	assert.Equal(t, []string{contract.ID}, f.engine.deleted)

	_, err = f.service.SubmitForApproval(context.Background(), contract.ID, "tutor-1")
	require.NoError(t, err)
	approved, err := f.service.RespondToApproval(context.Background(), contract.ID, "student-1", ApprovalRequest{Action: models.ApprovalActionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusApproved, approved.Status)

	// The surviving schedule was derived from the edited terms.
	schedule, err := f.engine.GetByContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), schedule.TotalAmount)
}

func TestContractServiceCreateRejectsWrongTutor(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())

	_, err := f.service.Create(context.Background(), "tutor-2", CreateContractRequest{
		NegotiationID:   "n1",
		PricePerSession: 250000,
		SessionDuration: 90,
		SessionCount:    4,
		PaymentMethod:   models.PaymentMethodFull,
	}, ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestContractServiceCreateDuplicate(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	f.repo.existing["n1"] = true

	_, err := f.service.Create(context.Background(), "tutor-1", CreateContractRequest{
		NegotiationID:   "n1",
		PricePerSession: 250000,
		SessionDuration: 90,
		SessionCount:    4,
		PaymentMethod:   models.PaymentMethodFull,
	}, ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicate.Code, appErrors.FromError(err).Code)
}

func seedContract(f *contractServiceFixture, status models.ContractStatus) *models.Contract {
	contract := &models.Contract{
		ID:              "c1",
		NegotiationID:   "n1",
		StudentID:       "student-1",
		TutorID:         "tutor-1",
		SubjectID:       "subj-1",
		PricePerSession: 250000,
		SessionDuration: 90,
		SessionCount:    4,
		TotalAmount:     1000000,
		PaymentMethod:   models.PaymentMethodFull,
		Status:          status,
	}
	f.repo.mu.Lock()
	if f.repo.items == nil {
		f.repo.items = make(map[string]*models.Contract)
	}
	f.repo.items[contract.ID] = contract
	f.repo.mu.Unlock()
	return contract
}

func TestContractServiceSubmitOnlyFromDraft(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusActive)

	_, err := f.service.SubmitForApproval(context.Background(), "c1", "tutor-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestContractServiceApprove(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusPendingStudentApproval)

	contract, err := f.service.RespondToApproval(context.Background(), "c1", "student-1", ApprovalRequest{Action: models.ApprovalActionApprove})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusApproved, contract.Status)
	assert.Equal(t, []string{"c1"}, f.engine.created)
	assert.Contains(t, f.notifier.events, EventContractApproved)
}

func TestContractServiceRejectCancels(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusPendingStudentApproval)

	contract, err := f.service.RespondToApproval(context.Background(), "c1", "student-1", ApprovalRequest{Action: models.ApprovalActionReject, Reason: "too expensive"})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusCancelled, contract.Status)
	assert.Equal(t, []string{"c1"}, f.engine.cancelled)
}

func TestContractServiceRequestChangesReturnsToDraft(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusPendingStudentApproval)

	contract, err := f.service.RespondToApproval(context.Background(), "c1", "student-1", ApprovalRequest{Action: models.ApprovalActionRequestChanges, Reason: "change duration"})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, contract.Status)
}

func TestContractServiceRespondPermissionBeforeState(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusDraft)

	// Wrong user on a contract in the wrong state: permission wins.
	_, err := f.service.RespondToApproval(context.Background(), "c1", "student-2", ApprovalRequest{Action: models.ApprovalActionApprove})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestContractServiceVerifyAndSignFailedCode(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	f.otp.matched = false
	seedContract(f, models.ContractStatusApproved)

	_, err := f.service.VerifyAndSign(context.Background(), "c1", "student-1", models.SignerRoleStudent, SignRequest{
		Handle: "h1", Code: "000000", ConsentText: "I agree",
	}, ClientMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVerificationFailed.Code, appErrors.FromError(err).Code)
	require.Len(t, f.ledger.attempts, 1)
	assert.False(t, f.ledger.attempts[0])

	stored, err := f.repo.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Nil(t, stored.StudentSignedAt)
}

func TestContractServiceConcurrentLastSigners(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusApproved)

	sign := func(userID string, role models.SignerRole, errs chan<- error) {
		_, err := f.service.VerifyAndSign(context.Background(), "c1", userID, role, SignRequest{
			Handle: "h1", Code: "123456", ConsentText: "I agree",
		}, ClientMeta{IPAddress: "10.0.0.1"})
		errs <- err
	}

	errs := make(chan error, 2)
	go sign("student-1", models.SignerRoleStudent, errs)
	go sign("tutor-1", models.SignerRoleTutor, errs)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	stored, err := f.repo.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusActive, stored.Status)
	assert.True(t, stored.IsFullySigned)

	// Exactly one caller wins the activation and runs the side effects.
	assert.Equal(t, 1, f.repo.activated)
	assert.Equal(t, 1, f.engagement.calls)
	assert.Equal(t, []string{"c1"}, f.engine.activated)
}

func TestContractServiceVerifyAndSignIdempotentAfterActivation(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	contract := seedContract(f, models.ContractStatusActive)
	now := time.Now().UTC()
	evidence := models.EvidenceOTPVerified
	f.repo.mu.Lock()
	f.repo.items[contract.ID].StudentSignedAt = &now
	f.repo.items[contract.ID].StudentEvidence = &evidence
	f.repo.items[contract.ID].TutorSignedAt = &now
	f.repo.mu.Unlock()

	result, err := f.service.VerifyAndSign(context.Background(), "c1", "student-1", models.SignerRoleStudent, SignRequest{
		Handle: "h1", Code: "123456", ConsentText: "I agree",
	}, ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusActive, result.Status)
	assert.Empty(t, f.ledger.attempts)
	assert.Equal(t, 0, f.repo.activated)
}

func TestContractServiceCancelIdempotent(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusPendingStudentApproval)

	first, err := f.service.Cancel(context.Background(), "c1", "student-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusCancelled, first.Status)

	second, err := f.service.Cancel(context.Background(), "c1", "student-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusCancelled, second.Status)
}

func TestContractServiceCancelRejectsActive(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusActive)

	_, err := f.service.Cancel(context.Background(), "c1", "student-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestContractServiceExpireStale(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	contract := seedContract(f, models.ContractStatusPendingStudentApproval)
	past := time.Now().UTC().Add(-time.Hour)
	f.repo.mu.Lock()
	f.repo.items[contract.ID].ApprovalDeadline = &past
	f.repo.mu.Unlock()

	count, err := f.service.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"c1"}, f.engine.cancelled)

	stored, err := f.repo.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusExpired, stored.Status)
}

func TestContractServiceListPinsPartyFilter(t *testing.T) {
	f := newContractServiceFixture(defaultContractsConfig())
	seedContract(f, models.ContractStatusDraft)

	contracts, pagination, err := f.service.List(context.Background(), models.ContractFilter{}, "student-1", models.RoleStudent)
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	contracts, _, err = f.service.List(context.Background(), models.ContractFilter{}, "student-2", models.RoleStudent)
	require.NoError(t, err)
	assert.Empty(t, contracts)
}
