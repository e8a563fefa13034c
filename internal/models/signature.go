package models

import "time"

// SignatureAuditStatus represents the outcome of one signing attempt.
type SignatureAuditStatus string

// Possible audit record statuses.
const (
	SignatureAuditPending  SignatureAuditStatus = "PENDING"
	SignatureAuditVerified SignatureAuditStatus = "VERIFIED"
	SignatureAuditFailed   SignatureAuditStatus = "FAILED"
	SignatureAuditExpired  SignatureAuditStatus = "EXPIRED"
)

// SignatureAuditRecord is one append-only row per signing attempt. A
// verified record is the legal proof of consent and is never edited.
type SignatureAuditRecord struct {
	ID             string               `db:"id" json:"id"`
	ContractID     string               `db:"contract_id" json:"contract_id"`
	SignerID       string               `db:"signer_id" json:"signer_id"`
	Role           SignerRole           `db:"role" json:"role"`
	RecipientEmail string               `db:"recipient_email" json:"recipient_email"`
	OTPHash        string               `db:"otp_hash" json:"-"`
	Evidence       EvidenceKind         `db:"evidence" json:"evidence"`
	IPAddress      string               `db:"ip_address" json:"ip_address"`
	UserAgent      string               `db:"user_agent" json:"user_agent"`
	ConsentText    string               `db:"consent_text" json:"consent_text"`
	AttemptCount   int                  `db:"attempt_count" json:"attempt_count"`
	Status         SignatureAuditStatus `db:"status" json:"status"`
	SignedAt       *time.Time           `db:"signed_at" json:"signed_at,omitempty"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
}
