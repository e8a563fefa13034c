package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

const contractColumns = `id, negotiation_id, student_id, tutor_id, subject_id,
        price_per_session, session_duration_min, session_count, total_amount,
        payment_method, installment_count, down_payment, first_payment_pct,
        status, is_fully_signed,
        student_signed_at, student_sign_ip, student_sig_ref, student_evidence,
        tutor_signed_at, tutor_sign_ip, tutor_sig_ref, tutor_evidence,
        activated_at, cancelled_at, cancel_reason, completed_at, approval_deadline,
        created_at, updated_at`

// ContractRepository handles persistence of contracts.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository constructs the repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// Create persists a new contract record.
func (r *ContractRepository) Create(ctx context.Context, contract *models.Contract) error {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if contract.CreatedAt.IsZero() {
		contract.CreatedAt = now
	}
	contract.UpdatedAt = now
	const query = `INSERT INTO contracts (id, negotiation_id, student_id, tutor_id, subject_id,
        price_per_session, session_duration_min, session_count, total_amount,
        payment_method, installment_count, down_payment, first_payment_pct,
        status, is_fully_signed,
        student_signed_at, student_sign_ip, student_sig_ref, student_evidence,
        tutor_signed_at, tutor_sign_ip, tutor_sig_ref, tutor_evidence,
        activated_at, cancelled_at, cancel_reason, completed_at, approval_deadline,
        created_at, updated_at)
        VALUES (:id, :negotiation_id, :student_id, :tutor_id, :subject_id,
        :price_per_session, :session_duration_min, :session_count, :total_amount,
        :payment_method, :installment_count, :down_payment, :first_payment_pct,
        :status, :is_fully_signed,
        :student_signed_at, :student_sign_ip, :student_sig_ref, :student_evidence,
        :tutor_signed_at, :tutor_sign_ip, :tutor_sig_ref, :tutor_evidence,
        :activated_at, :cancelled_at, :cancel_reason, :completed_at, :approval_deadline,
        :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, contract); err != nil {
		return fmt.Errorf("create contract: %w", err)
	}
	return nil
}

// FindByID returns a contract by its ID.
func (r *ContractRepository) FindByID(ctx context.Context, id string) (*models.Contract, error) {
	query := fmt.Sprintf(`SELECT %s FROM contracts WHERE id = $1`, contractColumns)
	var contract models.Contract
	if err := r.db.GetContext(ctx, &contract, query, id); err != nil {
		return nil, err
	}
	return &contract, nil
}

// ExistsForNegotiation checks whether a contract already covers a negotiation.
func (r *ContractRepository) ExistsForNegotiation(ctx context.Context, negotiationID string) (bool, error) {
	const query = `SELECT 1 FROM contracts WHERE negotiation_id = $1 AND status <> $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, negotiationID, models.ContractStatusCancelled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check contract for negotiation: %w", err)
	}
	return true, nil
}

// List returns contracts filtered by the provided criteria.
func (r *ContractRepository) List(ctx context.Context, filter models.ContractFilter) ([]models.Contract, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "created_at",
		"total_amount": "total_amount",
		"status":       "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM contracts%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		contractColumns, clause, orderBy, order, size, offset)

	var contracts []models.Contract
	if err := r.db.SelectContext(ctx, &contracts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list contracts: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM contracts" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count contracts: %w", err)
	}
	return contracts, total, nil
}

// UpdateDraftTerms rewrites the commercial terms of a DRAFT contract.
// The status predicate keeps totalAmount immutable after DRAFT.
func (r *ContractRepository) UpdateDraftTerms(ctx context.Context, contract *models.Contract) (bool, error) {
	const query = `UPDATE contracts SET
        price_per_session = $2, session_duration_min = $3, session_count = $4,
        total_amount = $5, payment_method = $6, installment_count = $7,
        down_payment = $8, first_payment_pct = $9, updated_at = $10
        WHERE id = $1 AND status = $11`
	res, err := r.db.ExecContext(ctx, query, contract.ID,
		contract.PricePerSession, contract.SessionDuration, contract.SessionCount,
		contract.TotalAmount, contract.PaymentMethod, contract.InstallmentCount,
		contract.DownPayment, contract.FirstPaymentPct, time.Now().UTC(),
		models.ContractStatusDraft)
	if err != nil {
		return false, fmt.Errorf("update draft terms: %w", err)
	}
	return rowsAffected(res)
}

// UpdateStatus moves a contract between states conditionally on the current
// one. Returns false when the contract was no longer in the expected state.
func (r *ContractRepository) UpdateStatus(ctx context.Context, id string, from, to models.ContractStatus) (bool, error) {
	const query = `UPDATE contracts SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update contract status: %w", err)
	}
	return rowsAffected(res)
}

// SetApprovalDeadline stamps the approval deadline used by the expiry sweep.
func (r *ContractRepository) SetApprovalDeadline(ctx context.Context, id string, deadline time.Time) error {
	const query = `UPDATE contracts SET approval_deadline = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, deadline, time.Now().UTC()); err != nil {
		return fmt.Errorf("set approval deadline: %w", err)
	}
	return nil
}

// SetSignature fills the signature slot for one role. The IS NULL predicate
// makes concurrent duplicate signatures for the same role first-write-wins.
func (r *ContractRepository) SetSignature(ctx context.Context, id string, role models.SignerRole, sig models.Signature) (bool, error) {
	var query string
	switch role {
	case models.SignerRoleStudent:
		query = `UPDATE contracts SET student_signed_at = $2, student_sign_ip = $3,
            student_sig_ref = $4, student_evidence = $5, updated_at = $6
            WHERE id = $1 AND student_signed_at IS NULL AND status = $7`
	case models.SignerRoleTutor:
		query = `UPDATE contracts SET tutor_signed_at = $2, tutor_sign_ip = $3,
            tutor_sig_ref = $4, tutor_evidence = $5, updated_at = $6
            WHERE id = $1 AND tutor_signed_at IS NULL AND status = $7`
	default:
		return false, fmt.Errorf("unknown signer role %q", role)
	}
	res, err := r.db.ExecContext(ctx, query, id, sig.SignedAt, sig.IPAddress,
		sig.SignatureRef, sig.Evidence, time.Now().UTC(), models.ContractStatusApproved)
	if err != nil {
		return false, fmt.Errorf("set %s signature: %w", strings.ToLower(string(role)), err)
	}
	return rowsAffected(res)
}

// SetSignatureRef links a signature slot to its audit record. The auto-sign
// path records the audit row after the contract insert, so the reference
// lands in a follow-up update.
func (r *ContractRepository) SetSignatureRef(ctx context.Context, id string, role models.SignerRole, ref string) error {
	var query string
	switch role {
	case models.SignerRoleStudent:
		query = `UPDATE contracts SET student_sig_ref = $2, updated_at = $3 WHERE id = $1`
	case models.SignerRoleTutor:
		query = `UPDATE contracts SET tutor_sig_ref = $2, updated_at = $3 WHERE id = $1`
	default:
		return fmt.Errorf("unknown signer role %q", role)
	}
	if _, err := r.db.ExecContext(ctx, query, id, ref, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s signature ref: %w", strings.ToLower(string(role)), err)
	}
	return nil
}

// Activate flips an APPROVED contract with both signatures present to
// ACTIVE. The status predicate is the optimistic guard: under concurrent
// last-signer requests exactly one caller sees rows affected.
func (r *ContractRepository) Activate(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE contracts SET status = $2, is_fully_signed = TRUE,
        activated_at = $3, updated_at = $3
        WHERE id = $1 AND status = $4
        AND student_signed_at IS NOT NULL AND tutor_signed_at IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, id, models.ContractStatusActive, at, models.ContractStatusApproved)
	if err != nil {
		return false, fmt.Errorf("activate contract: %w", err)
	}
	return rowsAffected(res)
}

// Cancel marks a contract CANCELLED when still in one of the given states.
func (r *ContractRepository) Cancel(ctx context.Context, id, reason string, from []models.ContractStatus) (bool, error) {
	placeholders := make([]string, len(from))
	args := []interface{}{id, models.ContractStatusCancelled, reason, time.Now().UTC()}
	for i, status := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, status)
	}
	query := fmt.Sprintf(`UPDATE contracts SET status = $2, cancel_reason = $3,
        cancelled_at = $4, updated_at = $4 WHERE id = $1 AND status IN (%s)`,
		strings.Join(placeholders, ","))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("cancel contract: %w", err)
	}
	return rowsAffected(res)
}

// Complete marks an ACTIVE contract COMPLETED.
func (r *ContractRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE contracts SET status = $2, completed_at = $3, updated_at = $3
        WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, models.ContractStatusCompleted, at, models.ContractStatusActive)
	if err != nil {
		return false, fmt.Errorf("complete contract: %w", err)
	}
	return rowsAffected(res)
}

// ExpireStale marks pre-active contracts past their deadline EXPIRED and
// returns the affected ids so schedules can be cancelled alongside.
func (r *ContractRepository) ExpireStale(ctx context.Context, now time.Time) ([]string, error) {
	const query = `UPDATE contracts SET status = $1, updated_at = $2
        WHERE status IN ($3, $4, $5) AND approval_deadline IS NOT NULL AND approval_deadline < $2
        RETURNING id`
	var ids []string
	err := r.db.SelectContext(ctx, &ids, query,
		models.ContractStatusExpired, now,
		models.ContractStatusDraft, models.ContractStatusPendingStudentApproval, models.ContractStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("expire stale contracts: %w", err)
	}
	return ids, nil
}

// CountByStatus aggregates contract counts for one party.
func (r *ContractRepository) CountByStatus(ctx context.Context, userID string) (map[models.ContractStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM contracts
        WHERE student_id = $1 OR tutor_id = $1 GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("count contracts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ContractStatus]int)
	for rows.Next() {
		var status models.ContractStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan contract count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
