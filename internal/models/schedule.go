package models

import "time"

// ScheduleStatus represents the lifecycle of a payment schedule.
type ScheduleStatus string

// Possible schedule statuses.
const (
	ScheduleStatusPending   ScheduleStatus = "PENDING"
	ScheduleStatusActive    ScheduleStatus = "ACTIVE"
	ScheduleStatusCompleted ScheduleStatus = "COMPLETED"
	ScheduleStatusCancelled ScheduleStatus = "CANCELLED"
	ScheduleStatusOverdue   ScheduleStatus = "OVERDUE"
)

// InstallmentStatus represents the lifecycle of a single installment.
type InstallmentStatus string

// Possible installment statuses.
const (
	InstallmentStatusUnpaid    InstallmentStatus = "UNPAID"
	InstallmentStatusPending   InstallmentStatus = "PENDING"
	InstallmentStatusPaid      InstallmentStatus = "PAID"
	InstallmentStatusOverdue   InstallmentStatus = "OVERDUE"
	InstallmentStatusCancelled InstallmentStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s InstallmentStatus) Terminal() bool {
	return s == InstallmentStatusPaid || s == InstallmentStatusCancelled
}

// Payable reports whether an installment in this status accepts a payment.
func (s InstallmentStatus) Payable() bool {
	return s == InstallmentStatusUnpaid || s == InstallmentStatusPending
}

// PaymentTerms captures the policy attached to a schedule.
type PaymentTerms struct {
	LateFeePct       int `db:"late_fee_pct" json:"late_fee_pct"`
	GracePeriodDays  int `db:"grace_period_days" json:"grace_period_days"`
	RefundPct        int `db:"refund_pct" json:"refund_pct"`
	MinimumNoticeDay int `db:"minimum_notice_days" json:"minimum_notice_days"`
}

// Installment is one scheduled payment line within a schedule.
type Installment struct {
	ID             string            `db:"id" json:"id"`
	ScheduleID     string            `db:"schedule_id" json:"schedule_id"`
	Number         int               `db:"number" json:"number"`
	SessionNumber  int               `db:"session_number" json:"session_number"`
	Amount         int64             `db:"amount" json:"amount"`
	DueDate        time.Time         `db:"due_date" json:"due_date"`
	Status         InstallmentStatus `db:"status" json:"status"`
	PaidAt         *time.Time        `db:"paid_at" json:"paid_at,omitempty"`
	PaidMethod     *string           `db:"paid_method" json:"paid_method,omitempty"`
	TransactionRef *string           `db:"transaction_ref" json:"transaction_ref,omitempty"`
	Notes          *string           `db:"notes" json:"notes,omitempty"`
}

// PaymentSchedule is the billing plan derived from one contract.
type PaymentSchedule struct {
	ID            string         `db:"id" json:"id"`
	ContractID    string         `db:"contract_id" json:"contract_id"`
	StudentID     string         `db:"student_id" json:"student_id"`
	TutorID       string         `db:"tutor_id" json:"tutor_id"`
	TotalAmount   int64          `db:"total_amount" json:"total_amount"`
	PaidAmount    int64          `db:"paid_amount" json:"paid_amount"`
	PaymentMethod PaymentMethod  `db:"payment_method" json:"payment_method"`
	Status        ScheduleStatus `db:"status" json:"status"`
	PaymentTerms
	FirstDueDate *time.Time `db:"first_due_date" json:"first_due_date,omitempty"`
	LastDueDate  *time.Time `db:"last_due_date" json:"last_due_date,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt  *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Installments []Installment `db:"-" json:"installments,omitempty"`
}

// RemainingAmount is always derived, never stored independently.
func (s *PaymentSchedule) RemainingAmount() int64 {
	return s.TotalAmount - s.PaidAmount
}

// IsParty reports whether the user is the schedule's student or tutor.
func (s *PaymentSchedule) IsParty(userID string) bool {
	return userID == s.StudentID || userID == s.TutorID
}

// ScheduleFilter provides filters for listing payment schedules.
type ScheduleFilter struct {
	StudentID string
	TutorID   string
	Status    ScheduleStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
