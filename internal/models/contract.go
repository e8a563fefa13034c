package models

import "time"

// ContractStatus represents the lifecycle of a tutoring contract.
type ContractStatus string

// Possible contract statuses.
const (
	ContractStatusDraft                  ContractStatus = "DRAFT"
	ContractStatusPendingStudentApproval ContractStatus = "PENDING_STUDENT_APPROVAL"
	ContractStatusApproved               ContractStatus = "APPROVED"
	ContractStatusActive                 ContractStatus = "ACTIVE"
	ContractStatusCancelled              ContractStatus = "CANCELLED"
	ContractStatusExpired                ContractStatus = "EXPIRED"
	ContractStatusCompleted              ContractStatus = "COMPLETED"
)

// PaymentMethod describes how the contract total is collected.
type PaymentMethod string

// Possible payment methods.
const (
	PaymentMethodFull         PaymentMethod = "FULL_PAYMENT"
	PaymentMethodInstallments PaymentMethod = "INSTALLMENTS"
)

// SignerRole identifies which party a signature belongs to.
type SignerRole string

// Possible signer roles.
const (
	SignerRoleStudent SignerRole = "STUDENT"
	SignerRoleTutor   SignerRole = "TUTOR"
)

// EvidenceKind tags how a signature was obtained.
type EvidenceKind string

// Possible evidence kinds.
const (
	EvidenceOTPVerified EvidenceKind = "OTP_VERIFIED"
	EvidenceAutoSigned  EvidenceKind = "AUTO_SIGNED"
)

// Signature captures one party's completed signature on a contract.
type Signature struct {
	SignedAt     time.Time    `json:"signed_at"`
	IPAddress    string       `json:"ip_address"`
	SignatureRef string       `json:"signature_ref"`
	Evidence     EvidenceKind `json:"evidence"`
}

// Contract represents one negotiated tutoring engagement.
// Signature columns are flattened for storage; Signatures() reassembles them.
type Contract struct {
	ID            string `db:"id" json:"id"`
	NegotiationID string `db:"negotiation_id" json:"negotiation_id"`
	StudentID     string `db:"student_id" json:"student_id"`
	TutorID       string `db:"tutor_id" json:"tutor_id"`
	SubjectID     string `db:"subject_id" json:"subject_id"`

	PricePerSession  int64         `db:"price_per_session" json:"price_per_session"`
	SessionDuration  int           `db:"session_duration_min" json:"session_duration_min"`
	SessionCount     int           `db:"session_count" json:"session_count"`
	TotalAmount      int64         `db:"total_amount" json:"total_amount"`
	PaymentMethod    PaymentMethod `db:"payment_method" json:"payment_method"`
	InstallmentCount int           `db:"installment_count" json:"installment_count"`
	DownPayment      int64         `db:"down_payment" json:"down_payment"`
	FirstPaymentPct  int           `db:"first_payment_pct" json:"first_payment_pct"`

	Status        ContractStatus `db:"status" json:"status"`
	IsFullySigned bool           `db:"is_fully_signed" json:"is_fully_signed"`

	StudentSignedAt *time.Time    `db:"student_signed_at" json:"student_signed_at,omitempty"`
	StudentSignIP   *string       `db:"student_sign_ip" json:"student_sign_ip,omitempty"`
	StudentSigRef   *string       `db:"student_sig_ref" json:"student_sig_ref,omitempty"`
	StudentEvidence *EvidenceKind `db:"student_evidence" json:"student_evidence,omitempty"`
	TutorSignedAt   *time.Time    `db:"tutor_signed_at" json:"tutor_signed_at,omitempty"`
	TutorSignIP     *string       `db:"tutor_sign_ip" json:"tutor_sign_ip,omitempty"`
	TutorSigRef     *string       `db:"tutor_sig_ref" json:"tutor_sig_ref,omitempty"`
	TutorEvidence   *EvidenceKind `db:"tutor_evidence" json:"tutor_evidence,omitempty"`

	ActivatedAt      *time.Time `db:"activated_at" json:"activated_at,omitempty"`
	CancelledAt      *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason     *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ApprovalDeadline *time.Time `db:"approval_deadline" json:"approval_deadline,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SignatureFor returns the signature for the given role, nil when unsigned.
func (c *Contract) SignatureFor(role SignerRole) *Signature {
	switch role {
	case SignerRoleStudent:
		if c.StudentSignedAt == nil {
			return nil
		}
		return assembleSignature(c.StudentSignedAt, c.StudentSignIP, c.StudentSigRef, c.StudentEvidence)
	case SignerRoleTutor:
		if c.TutorSignedAt == nil {
			return nil
		}
		return assembleSignature(c.TutorSignedAt, c.TutorSignIP, c.TutorSigRef, c.TutorEvidence)
	}
	return nil
}

// PartyID returns the user id holding the given role on the contract.
func (c *Contract) PartyID(role SignerRole) string {
	if role == SignerRoleTutor {
		return c.TutorID
	}
	return c.StudentID
}

// IsParty reports whether the user is the contract's student or tutor.
func (c *Contract) IsParty(userID string) bool {
	return userID == c.StudentID || userID == c.TutorID
}

func assembleSignature(at *time.Time, ip, ref *string, kind *EvidenceKind) *Signature {
	sig := &Signature{SignedAt: *at}
	if ip != nil {
		sig.IPAddress = *ip
	}
	if ref != nil {
		sig.SignatureRef = *ref
	}
	if kind != nil {
		sig.Evidence = *kind
	}
	return sig
}

// ApprovalAction enumerates the student's responses to a submitted contract.
type ApprovalAction string

// Possible approval actions.
const (
	ApprovalActionApprove        ApprovalAction = "APPROVE"
	ApprovalActionReject         ApprovalAction = "REJECT"
	ApprovalActionRequestChanges ApprovalAction = "REQUEST_CHANGES"
)

// ContractFilter provides filters for listing contracts.
type ContractFilter struct {
	StudentID string
	TutorID   string
	Status    ContractStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ContractStats aggregates contract counts by status for one party.
type ContractStats struct {
	Total     int `json:"total"`
	Draft     int `json:"draft"`
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
}
