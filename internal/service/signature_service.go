package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
	appErrors "github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/errors"
)

type signatureRepository interface {
	Append(ctx context.Context, record *models.SignatureAuditRecord) error
	ListByContract(ctx context.Context, contractID string) ([]models.SignatureAuditRecord, error)
	CountAttempts(ctx context.Context, contractID string, role models.SignerRole) (int, error)
	HasVerified(ctx context.Context, contractID string, role models.SignerRole) (bool, error)
}

type contractReader interface {
	FindByID(ctx context.Context, id string) (*models.Contract, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type otpGenerator interface {
	Generate(ctx context.Context, contractID, email, contractLabel string) (*OTPChallenge, error)
}

// SigningSession is what BeginSigning hands back to the caller: where the
// code went and the opaque handle to verify it with.
type SigningSession struct {
	RecipientEmail string    `json:"recipient_email"`
	Handle         string    `json:"handle"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// AttemptAudit carries the request-side evidence for one signing attempt.
type AttemptAudit struct {
	IPAddress   string
	UserAgent   string
	ConsentText string
	OTPHash     string
}

// SignatureService is the e-signature ledger: it gates who may sign, hands
// out OTP challenges and records one immutable audit row per attempt. It
// enforces no retry maximum; rate limiting is the transport's concern.
type SignatureService struct {
	records   signatureRepository
	contracts contractReader
	users     userReader
	otp       otpGenerator
	logger    *zap.Logger
}

// NewSignatureService constructs SignatureService.
func NewSignatureService(records signatureRepository, contracts contractReader, users userReader, otp otpGenerator, logger *zap.Logger) *SignatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureService{records: records, contracts: contracts, users: users, otp: otp, logger: logger}
}

// BeginSigning validates the signer against the contract and issues an OTP
// challenge. Permission errors are reported before state errors.
func (s *SignatureService) BeginSigning(ctx context.Context, contractID, signerID string, role models.SignerRole) (*SigningSession, error) {
	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.PartyID(role) != signerID {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "signer does not hold this role on the contract")
	}
	if err := signableBy(contract, role); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, signerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signer")
	}

	label := contractLabel(contract)
	challenge, err := s.otp.Generate(ctx, contract.ID, user.Email, label)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue verification code")
	}

	return &SigningSession{RecipientEmail: user.Email, Handle: challenge.Handle, ExpiresAt: challenge.ExpiresAt}, nil
}

// RecordAttempt appends the audit row for one verification attempt and
// returns it. A verified attempt for a role that already holds an
// authoritative record is still logged; the lifecycle layer treats the
// re-signature as a no-op.
func (s *SignatureService) RecordAttempt(ctx context.Context, contractID, signerID string, role models.SignerRole, verified bool, audit AttemptAudit) (*models.SignatureAuditRecord, error) {
	user, err := s.users.FindByID(ctx, signerID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signer")
	}
	email := ""
	if user != nil {
		email = user.Email
	}

	attempts, err := s.records.CountAttempts(ctx, contractID, role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attempts")
	}

	record := &models.SignatureAuditRecord{
		ContractID:     contractID,
		SignerID:       signerID,
		Role:           role,
		RecipientEmail: email,
		OTPHash:        audit.OTPHash,
		Evidence:       models.EvidenceOTPVerified,
		IPAddress:      audit.IPAddress,
		UserAgent:      audit.UserAgent,
		ConsentText:    audit.ConsentText,
		AttemptCount:   attempts + 1,
		Status:         models.SignatureAuditFailed,
	}
	if verified {
		now := time.Now().UTC()
		record.Status = models.SignatureAuditVerified
		record.SignedAt = &now
	}
	if err := s.records.Append(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append audit record")
	}
	return record, nil
}

// RecordAutoSign appends the VERIFIED audit row for the tutor-authors-and-
// signs shortcut. The hash is deterministic and tagged so the trail stays
// uniform while making the non-OTP origin explicit.
func (s *SignatureService) RecordAutoSign(ctx context.Context, contract *models.Contract, audit AttemptAudit) (*models.SignatureAuditRecord, error) {
	user, err := s.users.FindByID(ctx, contract.TutorID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor")
	}
	email := ""
	if user != nil {
		email = user.Email
	}

	now := time.Now().UTC()
	record := &models.SignatureAuditRecord{
		ContractID:     contract.ID,
		SignerID:       contract.TutorID,
		Role:           models.SignerRoleTutor,
		RecipientEmail: email,
		OTPHash:        autoSignHash(contract.ID, contract.TutorID),
		Evidence:       models.EvidenceAutoSigned,
		IPAddress:      audit.IPAddress,
		UserAgent:      audit.UserAgent,
		ConsentText:    audit.ConsentText,
		AttemptCount:   1,
		Status:         models.SignatureAuditVerified,
		SignedAt:       &now,
	}
	if err := s.records.Append(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append auto-sign record")
	}
	return record, nil
}

// HasVerified reports whether the role already holds an authoritative
// VERIFIED record on the contract.
func (s *SignatureService) HasVerified(ctx context.Context, contractID string, role models.SignerRole) (bool, error) {
	ok, err := s.records.HasVerified(ctx, contractID, role)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check verified signature")
	}
	return ok, nil
}

// ListByContract returns the audit trail for a contract.
func (s *SignatureService) ListByContract(ctx context.Context, contractID, callerID string) ([]models.SignatureAuditRecord, error) {
	contract, err := s.loadContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.IsParty(callerID) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "")
	}
	records, err := s.records.ListByContract(ctx, contractID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit records")
	}
	return records, nil
}

func (s *SignatureService) loadContract(ctx context.Context, contractID string) (*models.Contract, error) {
	contract, err := s.contracts.FindByID(ctx, contractID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "contract not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load contract")
	}
	return contract, nil
}

// signableBy reports whether the contract currently accepts a signature
// for the role.
func signableBy(contract *models.Contract, role models.SignerRole) error {
	if contract.Status != models.ContractStatusApproved {
		return appErrors.Clone(appErrors.ErrInvalidState, "contract is not open for signing")
	}
	if contract.SignatureFor(role) != nil {
		return appErrors.Clone(appErrors.ErrInvalidState, "this party has already signed")
	}
	return nil
}

func contractLabel(contract *models.Contract) string {
	return fmt.Sprintf("tutoring contract %s", contract.ID)
}

func autoSignHash(contractID, tutorID string) string {
	sum := sha256.Sum256([]byte("autosign:" + contractID + ":" + tutorID))
	return "autosign:" + hex.EncodeToString(sum[:])
}
