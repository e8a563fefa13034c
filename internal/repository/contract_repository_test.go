package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

func newContractRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func contractRows(id string, status models.ContractStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "negotiation_id", "student_id", "tutor_id", "subject_id",
		"price_per_session", "session_duration_min", "session_count", "total_amount",
		"payment_method", "installment_count", "down_payment", "first_payment_pct",
		"status", "is_fully_signed",
		"student_signed_at", "student_sign_ip", "student_sig_ref", "student_evidence",
		"tutor_signed_at", "tutor_sign_ip", "tutor_sig_ref", "tutor_evidence",
		"activated_at", "cancelled_at", "cancel_reason", "completed_at", "approval_deadline",
		"created_at", "updated_at",
	}).AddRow(
		id, "neg-1", "student-1", "tutor-1", "subject-1",
		250000, 90, 4, 1000000,
		"INSTALLMENTS", 4, 0, 0,
		string(status), false,
		nil, nil, nil, nil,
		nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
		now, now,
	)
}

func TestContractRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contracts")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	contract := &models.Contract{
		NegotiationID:    "neg-1",
		StudentID:        "student-1",
		TutorID:          "tutor-1",
		SubjectID:        "subject-1",
		PricePerSession:  250000,
		SessionDuration:  90,
		SessionCount:     4,
		TotalAmount:      1000000,
		PaymentMethod:    models.PaymentMethodInstallments,
		InstallmentCount: 4,
		Status:           models.ContractStatusDraft,
	}
	require.NoError(t, repo.Create(context.Background(), contract))
	require.NotEmpty(t, contract.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, negotiation_id, student_id")).
		WithArgs("c1").
		WillReturnRows(contractRows("c1", models.ContractStatusDraft))

	found, err := repo.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "c1", found.ID)
	require.Equal(t, models.ContractStatusDraft, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryExistsForNegotiation(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM contracts WHERE negotiation_id")).
		WithArgs("neg-1", string(models.ContractStatusCancelled)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsForNegotiation(context.Background(), "neg-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM contracts WHERE negotiation_id")).
		WithArgs("neg-2", string(models.ContractStatusCancelled)).
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsForNegotiation(context.Background(), "neg-2")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryUpdateStatusConditional(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateStatus(context.Background(), "c1",
		models.ContractStatusDraft, models.ContractStatusPendingStudentApproval)
	require.NoError(t, err)
	require.True(t, updated)

	// Contract no longer in the expected state: zero rows, no error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = repo.UpdateStatus(context.Background(), "c1",
		models.ContractStatusDraft, models.ContractStatusPendingStudentApproval)
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositorySetSignature(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	sig := models.Signature{
		SignedAt:     time.Now().UTC(),
		IPAddress:    "10.0.0.1",
		SignatureRef: "sig-1",
		Evidence:     models.EvidenceOTPVerified,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET student_signed_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	set, err := repo.SetSignature(context.Background(), "c1", models.SignerRoleStudent, sig)
	require.NoError(t, err)
	require.True(t, set)

	// Slot already filled: the IS NULL predicate makes the retry a no-op.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET student_signed_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	set, err = repo.SetSignature(context.Background(), "c1", models.SignerRoleStudent, sig)
	require.NoError(t, err)
	require.False(t, set)

	_, err = repo.SetSignature(context.Background(), "c1", models.SignerRole("ADMIN"), sig)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositorySetSignatureRef(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET tutor_sig_ref")).
		WithArgs("c1", "rec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetSignatureRef(context.Background(), "c1", models.SignerRoleTutor, "rec-1"))

	err := repo.SetSignatureRef(context.Background(), "c1", models.SignerRole("ADMIN"), "rec-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryRowsAffectedFailureSurfaces(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status")).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver gone")))

	// A driver failure must not read as "zero rows matched".
	_, err := repo.UpdateStatus(context.Background(), "c1",
		models.ContractStatusDraft, models.ContractStatusPendingStudentApproval)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryActivateSingleWinner(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status = $2, is_fully_signed = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := repo.Activate(context.Background(), "c1", at)
	require.NoError(t, err)
	require.True(t, won)

	// Second caller sees the status predicate fail.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status = $2, is_fully_signed = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = repo.Activate(context.Background(), "c1", at)
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryCancelFromStates(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	from := []models.ContractStatus{
		models.ContractStatusDraft,
		models.ContractStatusPendingStudentApproval,
		models.ContractStatusApproved,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status = $2, cancel_reason")).
		WithArgs("c1", string(models.ContractStatusCancelled), "changed my mind", sqlmock.AnyArg(),
			string(models.ContractStatusDraft),
			string(models.ContractStatusPendingStudentApproval),
			string(models.ContractStatusApproved)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cancelled, err := repo.Cancel(context.Background(), "c1", "changed my mind", from)
	require.NoError(t, err)
	require.True(t, cancelled)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status = $2, cancel_reason")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	cancelled, err = repo.Cancel(context.Background(), "c1", "changed my mind", from)
	require.NoError(t, err)
	require.False(t, cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryComplete(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contracts SET status = $2, completed_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	completed, err := repo.Complete(context.Background(), "c1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, completed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryExpireStale(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE contracts SET status = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1").AddRow("c2"))

	ids, err := repo.ExpireStale(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	rows := sqlmock.NewRows([]string{"status", "total"}).
		AddRow("ACTIVE", 3).
		AddRow("COMPLETED", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*)")).
		WithArgs("student-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "student-1")
	require.NoError(t, err)
	require.Equal(t, 3, counts[models.ContractStatusActive])
	require.Equal(t, 1, counts[models.ContractStatusCompleted])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContractRepositoryListBuildsFilters(t *testing.T) {
	db, mock, cleanup := newContractRepoMock(t)
	defer cleanup()

	repo := NewContractRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, negotiation_id, student_id")).
		WithArgs("student-1", string(models.ContractStatusActive)).
		WillReturnRows(contractRows("c1", models.ContractStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM contracts")).
		WithArgs("student-1", string(models.ContractStatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	contracts, total, err := repo.List(context.Background(), models.ContractFilter{
		StudentID: "student-1",
		Status:    models.ContractStatusActive,
	})
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
