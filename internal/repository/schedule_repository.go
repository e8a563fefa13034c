package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

// Sentinel errors surfaced by payment recording; the service layer maps
// them onto the API error taxonomy.
var (
	ErrInstallmentNotPayable = errors.New("installment is not payable")
	ErrPaymentAmountMismatch = errors.New("payment amount does not match installment amount")
)

const scheduleColumns = `id, contract_id, student_id, tutor_id, total_amount, paid_amount,
        payment_method, status, late_fee_pct, grace_period_days, refund_pct, minimum_notice_days,
        first_due_date, last_due_date, completed_at, cancelled_at, created_at, updated_at`

const installmentColumns = `id, schedule_id, number, session_number, amount, due_date,
        status, paid_at, paid_method, transaction_ref, notes`

// ScheduleRepository handles persistence of payment schedules and their
// installments as one aggregate.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create persists a schedule and its installments in one transaction.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.PaymentSchedule) (err error) {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertSchedule = `INSERT INTO payment_schedules (id, contract_id, student_id, tutor_id,
        total_amount, paid_amount, payment_method, status, late_fee_pct, grace_period_days,
        refund_pct, minimum_notice_days, first_due_date, last_due_date, completed_at,
        cancelled_at, created_at, updated_at)
        VALUES (:id, :contract_id, :student_id, :tutor_id, :total_amount, :paid_amount,
        :payment_method, :status, :late_fee_pct, :grace_period_days, :refund_pct,
        :minimum_notice_days, :first_due_date, :last_due_date, :completed_at,
        :cancelled_at, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertSchedule, schedule); err != nil {
		return fmt.Errorf("create payment schedule: %w", err)
	}

	const insertInstallment = `INSERT INTO installments (id, schedule_id, number, session_number,
        amount, due_date, status, paid_at, paid_method, transaction_ref, notes)
        VALUES (:id, :schedule_id, :number, :session_number, :amount, :due_date, :status,
        :paid_at, :paid_method, :transaction_ref, :notes)`
	for i := range schedule.Installments {
		inst := &schedule.Installments[i]
		if inst.ID == "" {
			inst.ID = uuid.NewString()
		}
		inst.ScheduleID = schedule.ID
		if _, err = tx.NamedExecContext(ctx, insertInstallment, inst); err != nil {
			return fmt.Errorf("create installment %d: %w", inst.Number, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

// FindByID returns a schedule with its installments.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.PaymentSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_schedules WHERE id = $1`, scheduleColumns)
	var schedule models.PaymentSchedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	if err := r.loadInstallments(ctx, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindByContract returns the schedule belonging to a contract.
func (r *ScheduleRepository) FindByContract(ctx context.Context, contractID string) (*models.PaymentSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_schedules WHERE contract_id = $1`, scheduleColumns)
	var schedule models.PaymentSchedule
	if err := r.db.GetContext(ctx, &schedule, query, contractID); err != nil {
		return nil, err
	}
	if err := r.loadInstallments(ctx, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ExistsForContract checks whether a schedule already covers a contract.
func (r *ScheduleRepository) ExistsForContract(ctx context.Context, contractID string) (bool, error) {
	const query = `SELECT 1 FROM payment_schedules WHERE contract_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, contractID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check schedule for contract: %w", err)
	}
	return true, nil
}

// List returns schedules filtered by the provided criteria.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.PaymentSchedule, int, error) {
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

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM payment_schedules%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		scheduleColumns, clause, size, offset)
	var schedules []models.PaymentSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM payment_schedules" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return schedules, total, nil
}

// Activate flips a PENDING schedule to ACTIVE. Zero rows affected with an
// already-ACTIVE schedule is the idempotent no-op path.
func (r *ScheduleRepository) Activate(ctx context.Context, contractID string) (bool, error) {
	const query = `UPDATE payment_schedules SET status = $2, updated_at = $3
        WHERE contract_id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, contractID, models.ScheduleStatusActive,
		time.Now().UTC(), models.ScheduleStatusPending)
	if err != nil {
		return false, fmt.Errorf("activate schedule: %w", err)
	}
	return rowsAffected(res)
}

// DeletePending drops a PENDING schedule and its installments so edited
// draft terms can be re-derived. A schedule that reached ACTIVE is never
// deleted; callers get false and must cancel instead.
func (r *ScheduleRepository) DeletePending(ctx context.Context, contractID string) (deleted bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const find = `SELECT id FROM payment_schedules WHERE contract_id = $1 AND status = $2`
	var scheduleID string
	err = tx.GetContext(ctx, &scheduleID, find, contractID, models.ScheduleStatusPending)
	if err != nil {
		if err == sql.ErrNoRows {
			err = tx.Commit()
			return false, err
		}
		return false, fmt.Errorf("find pending schedule: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM installments WHERE schedule_id = $1`, scheduleID); err != nil {
		return false, fmt.Errorf("delete installments: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM payment_schedules WHERE id = $1`, scheduleID); err != nil {
		return false, fmt.Errorf("delete schedule: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return true, nil
}

// Cancel marks the schedule CANCELLED and force-cancels every installment
// that has not been paid. PAID installments stay untouched.
func (r *ScheduleRepository) Cancel(ctx context.Context, contractID string) (cancelled bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const updateSchedule = `UPDATE payment_schedules SET status = $2, cancelled_at = $3, updated_at = $3
        WHERE contract_id = $1 AND status IN ($4, $5, $6) RETURNING id`
	var scheduleID string
	err = tx.GetContext(ctx, &scheduleID, updateSchedule, contractID, models.ScheduleStatusCancelled,
		now, models.ScheduleStatusPending, models.ScheduleStatusActive, models.ScheduleStatusOverdue)
	if err != nil {
		if err == sql.ErrNoRows {
			// No schedule, or already terminal: retrying a cancel is a no-op.
			err = tx.Commit()
			return false, err
		}
		return false, fmt.Errorf("cancel schedule: %w", err)
	}

	const cancelInstallments = `UPDATE installments SET status = $2
        WHERE schedule_id = $1 AND status IN ($3, $4, $5)`
	if _, err = tx.ExecContext(ctx, cancelInstallments, scheduleID, models.InstallmentStatusCancelled,
		models.InstallmentStatusUnpaid, models.InstallmentStatusPending, models.InstallmentStatusOverdue); err != nil {
		return false, fmt.Errorf("cancel installments: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cancel: %w", err)
	}
	return true, nil
}

// RecordPayment settles one installment inside a transaction. The row lock
// serialises concurrent payments against the same installment; paid_amount
// and completion are recomputed before commit so the aggregate invariants
// hold at every observable point.
func (r *ScheduleRepository) RecordPayment(ctx context.Context, scheduleID string, number int, amount int64, method, transactionRef string) (schedule *models.PaymentSchedule, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var inst models.Installment
	lockQuery := fmt.Sprintf(`SELECT %s FROM installments WHERE schedule_id = $1 AND number = $2 FOR UPDATE`, installmentColumns)
	if err = tx.GetContext(ctx, &inst, lockQuery, scheduleID, number); err != nil {
		return nil, err
	}
	if !inst.Status.Payable() {
		err = ErrInstallmentNotPayable
		return nil, err
	}
	if inst.Amount != amount {
		err = ErrPaymentAmountMismatch
		return nil, err
	}

	now := time.Now().UTC()
	const payInstallment = `UPDATE installments SET status = $2, paid_at = $3, paid_method = $4,
        transaction_ref = $5 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, payInstallment, inst.ID, models.InstallmentStatusPaid, now, method, transactionRef); err != nil {
		return nil, fmt.Errorf("mark installment paid: %w", err)
	}

	const bumpPaid = `UPDATE payment_schedules SET paid_amount = paid_amount + $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, bumpPaid, scheduleID, amount, now); err != nil {
		return nil, fmt.Errorf("update paid amount: %w", err)
	}

	var open int
	const openQuery = `SELECT COUNT(*) FROM installments WHERE schedule_id = $1 AND status NOT IN ($2, $3)`
	if err = tx.GetContext(ctx, &open, openQuery, scheduleID, models.InstallmentStatusPaid, models.InstallmentStatusCancelled); err != nil {
		return nil, fmt.Errorf("count open installments: %w", err)
	}
	if open == 0 {
		const complete = `UPDATE payment_schedules SET status = $2, completed_at = $3, updated_at = $3
            WHERE id = $1 AND status <> $2`
		if _, err = tx.ExecContext(ctx, complete, scheduleID, models.ScheduleStatusCompleted, now); err != nil {
			return nil, fmt.Errorf("complete schedule: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}
	return r.FindByID(ctx, scheduleID)
}

// ApplyOverdue persists the result of an overdue sweep: the listed
// installments move to OVERDUE and, when requested, so does the schedule.
func (r *ScheduleRepository) ApplyOverdue(ctx context.Context, scheduleID string, numbers []int, markSchedule bool) error {
	if len(numbers) == 0 {
		return nil
	}
	placeholders := make([]string, len(numbers))
	args := []interface{}{scheduleID, models.InstallmentStatusOverdue}
	for i, n := range numbers {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, n)
	}
	unpaid := fmt.Sprintf("$%d", len(args)+1)
	args = append(args, models.InstallmentStatusUnpaid)
	pending := fmt.Sprintf("$%d", len(args)+1)
	args = append(args, models.InstallmentStatusPending)
	query := fmt.Sprintf(`UPDATE installments SET status = $2
        WHERE schedule_id = $1 AND number IN (%s) AND status IN (%s, %s)`,
		strings.Join(placeholders, ","), unpaid, pending)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark installments overdue: %w", err)
	}

	if markSchedule {
		const query = `UPDATE payment_schedules SET status = $2, updated_at = $3
            WHERE id = $1 AND status = $4`
		if _, err := r.db.ExecContext(ctx, query, scheduleID, models.ScheduleStatusOverdue,
			time.Now().UTC(), models.ScheduleStatusActive); err != nil {
			return fmt.Errorf("mark schedule overdue: %w", err)
		}
	}
	return nil
}

// UpcomingDue returns active-schedule installments falling due within the
// window, for payment reminders.
func (r *ScheduleRepository) UpcomingDue(ctx context.Context, from, to time.Time) ([]models.Installment, error) {
	query := fmt.Sprintf(`SELECT %s FROM installments i
        WHERE i.status IN ($1, $2) AND i.due_date >= $3 AND i.due_date < $4
        AND EXISTS (SELECT 1 FROM payment_schedules s WHERE s.id = i.schedule_id AND s.status = $5)
        ORDER BY i.due_date ASC`, prefixColumns(installmentColumns, "i"))
	var installments []models.Installment
	err := r.db.SelectContext(ctx, &installments, query,
		models.InstallmentStatusUnpaid, models.InstallmentStatusPending, from, to, models.ScheduleStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list upcoming installments: %w", err)
	}
	return installments, nil
}

func (r *ScheduleRepository) loadInstallments(ctx context.Context, schedule *models.PaymentSchedule) error {
	query := fmt.Sprintf(`SELECT %s FROM installments WHERE schedule_id = $1 ORDER BY number ASC`, installmentColumns)
	if err := r.db.SelectContext(ctx, &schedule.Installments, query, schedule.ID); err != nil {
		return fmt.Errorf("load installments: %w", err)
	}
	return nil
}

func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
