package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

const signatureColumns = `id, contract_id, signer_id, role, recipient_email, otp_hash,
        evidence, ip_address, user_agent, consent_text, attempt_count, status, signed_at, created_at`

// SignatureRepository persists the append-only e-signature audit trail.
// Rows are only ever inserted; there is no update or delete path.
type SignatureRepository struct {
	db *sqlx.DB
}

// NewSignatureRepository constructs the repository.
func NewSignatureRepository(db *sqlx.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// Append inserts one audit record.
func (r *SignatureRepository) Append(ctx context.Context, record *models.SignatureAuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO signature_audit_records (id, contract_id, signer_id, role,
        recipient_email, otp_hash, evidence, ip_address, user_agent, consent_text,
        attempt_count, status, signed_at, created_at)
        VALUES (:id, :contract_id, :signer_id, :role, :recipient_email, :otp_hash,
        :evidence, :ip_address, :user_agent, :consent_text, :attempt_count, :status,
        :signed_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("append signature audit record: %w", err)
	}
	return nil
}

// ListByContract returns the full audit trail for a contract, oldest first.
func (r *SignatureRepository) ListByContract(ctx context.Context, contractID string) ([]models.SignatureAuditRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM signature_audit_records WHERE contract_id = $1 ORDER BY created_at ASC`, signatureColumns)
	var records []models.SignatureAuditRecord
	if err := r.db.SelectContext(ctx, &records, query, contractID); err != nil {
		return nil, fmt.Errorf("list signature audit records: %w", err)
	}
	return records, nil
}

// CountAttempts returns the number of prior attempts for a contract role.
func (r *SignatureRepository) CountAttempts(ctx context.Context, contractID string, role models.SignerRole) (int, error) {
	const query = `SELECT COUNT(*) FROM signature_audit_records WHERE contract_id = $1 AND role = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, contractID, role); err != nil {
		return 0, fmt.Errorf("count signature attempts: %w", err)
	}
	return count, nil
}

// HasVerified reports whether an authoritative VERIFIED record already
// exists for the contract role.
func (r *SignatureRepository) HasVerified(ctx context.Context, contractID string, role models.SignerRole) (bool, error) {
	const query = `SELECT 1 FROM signature_audit_records
        WHERE contract_id = $1 AND role = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, contractID, role, models.SignatureAuditVerified); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check verified signature: %w", err)
	}
	return true, nil
}
