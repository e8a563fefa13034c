package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

type mockSignatureRepo struct {
	records []models.SignatureAuditRecord
}

func (m *mockSignatureRepo) Append(ctx context.Context, record *models.SignatureAuditRecord) error {
	if record.ID == "" {
		record.ID = "rec-generated"
	}
	record.CreatedAt = time.Now().UTC()
	m.records = append(m.records, *record)
	return nil
}

func (m *mockSignatureRepo) ListByContract(ctx context.Context, contractID string) ([]models.SignatureAuditRecord, error) {
	var out []models.SignatureAuditRecord
	for _, record := range m.records {
		if record.ContractID == contractID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *mockSignatureRepo) CountAttempts(ctx context.Context, contractID string, role models.SignerRole) (int, error) {
	count := 0
	for _, record := range m.records {
		if record.ContractID == contractID && record.Role == role {
			count++
		}
	}
	return count, nil
}

func (m *mockSignatureRepo) HasVerified(ctx context.Context, contractID string, role models.SignerRole) (bool, error) {
	for _, record := range m.records {
		if record.ContractID == contractID && record.Role == role && record.Status == models.SignatureAuditVerified {
			return true, nil
		}
	}
	return false, nil
}

type mockContractReader struct {
	contract *models.Contract
}

func (m *mockContractReader) FindByID(ctx context.Context, id string) (*models.Contract, error) {
	if m.contract == nil || m.contract.ID != id {
		return nil, sql.ErrNoRows
	}
	cp := *m.contract
	return &cp, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockOTPGenerator struct {
	calls int
}

func (m *mockOTPGenerator) Generate(ctx context.Context, contractID, email, contractLabel string) (*OTPChallenge, error) {
	m.calls++
	return &OTPChallenge{Handle: "handle-1", ExpiresAt: time.Now().UTC().Add(5 * time.Minute)}, nil
}

func approvedContract() *models.Contract {
	return &models.Contract{
		ID:        "c1",
		StudentID: "student-1",
		TutorID:   "tutor-1",
		Status:    models.ContractStatusApproved,
	}
}

func newSignatureFixture(contract *models.Contract) (*SignatureService, *mockSignatureRepo, *mockOTPGenerator) {
	repo := &mockSignatureRepo{}
	otp := &mockOTPGenerator{}
	users := &mockUserReader{users: map[string]*models.User{
		"student-1": {ID: "student-1", Email: "student@example.com"},
		"tutor-1":   {ID: "tutor-1", Email: "tutor@example.com"},
	}}
	svc := NewSignatureService(repo, &mockContractReader{contract: contract}, users, otp, zap.NewNop())
	return svc, repo, otp
}

func TestSignatureServiceBeginSigning(t *testing.T) {
	svc, _, otp := newSignatureFixture(approvedContract())

	session, err := svc.BeginSigning(context.Background(), "c1", "student-1", models.SignerRoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", session.RecipientEmail)
	assert.Equal(t, "handle-1", session.Handle)
	assert.Equal(t, 1, otp.calls)
}

func TestSignatureServiceBeginSigningPermissionBeforeState(t *testing.T) {
	contract := approvedContract()
	contract.Status = models.ContractStatusDraft
	svc, _, _ := newSignatureFixture(contract)

	// The caller does not hold the role, and the contract is not signable:
	// the permission error must win.
	_, err := svc.BeginSigning(context.Background(), "c1", "intruder", models.SignerRoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestSignatureServiceBeginSigningRejectsUnsignableState(t *testing.T) {
	contract := approvedContract()
	contract.Status = models.ContractStatusDraft
	svc, _, _ := newSignatureFixture(contract)

	_, err := svc.BeginSigning(context.Background(), "c1", "student-1", models.SignerRoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestSignatureServiceBeginSigningRejectsAlreadySigned(t *testing.T) {
	contract := approvedContract()
	now := time.Now().UTC()
	contract.StudentSignedAt = &now
	svc, _, _ := newSignatureFixture(contract)

	_, err := svc.BeginSigning(context.Background(), "c1", "student-1", models.SignerRoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestSignatureServiceRecordAttemptCountsPerRole(t *testing.T) {
	svc, repo, _ := newSignatureFixture(approvedContract())

	first, err := svc.RecordAttempt(context.Background(), "c1", "student-1", models.SignerRoleStudent, false, AttemptAudit{OTPHash: "h1"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptCount)
	assert.Equal(t, models.SignatureAuditFailed, first.Status)
	assert.Nil(t, first.SignedAt)

	second, err := svc.RecordAttempt(context.Background(), "c1", "student-1", models.SignerRoleStudent, true, AttemptAudit{OTPHash: "h2"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptCount)
	assert.Equal(t, models.SignatureAuditVerified, second.Status)
	require.NotNil(t, second.SignedAt)
	assert.Equal(t, models.EvidenceOTPVerified, second.Evidence)

	// Rows are append-only: both attempts stay on the trail.
	assert.Len(t, repo.records, 2)

	ok, err := svc.HasVerified(context.Background(), "c1", models.SignerRoleStudent)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignatureServiceRecordAutoSign(t *testing.T) {
	contract := approvedContract()
	svc, repo, _ := newSignatureFixture(contract)

	record, err := svc.RecordAutoSign(context.Background(), contract, AttemptAudit{IPAddress: "10.0.0.1", ConsentText: "authored and signed"})
	require.NoError(t, err)
	assert.Equal(t, models.SignerRoleTutor, record.Role)
	assert.Equal(t, models.EvidenceAutoSigned, record.Evidence)
	assert.Equal(t, models.SignatureAuditVerified, record.Status)
	assert.True(t, strings.HasPrefix(record.OTPHash, "autosign:"))
	assert.Equal(t, "tutor@example.com", record.RecipientEmail)
	assert.Len(t, repo.records, 1)
}

func TestSignatureServiceListByContractPartyGate(t *testing.T) {
	svc, _, _ := newSignatureFixture(approvedContract())

	_, err := svc.ListByContract(context.Background(), "c1", "someone-else")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	records, err := svc.ListByContract(context.Background(), "c1", "tutor-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}
