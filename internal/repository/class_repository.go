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

// ClassRepository persists teaching engagements created from signed contracts.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create persists a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO classes (id, contract_id, student_id, tutor_id, subject_id,
        session_count, session_duration_min, status, created_at)
        VALUES (:id, :contract_id, :student_id, :tutor_id, :subject_id,
        :session_count, :session_duration_min, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// ExistsForContract reports whether a class was already created for a contract.
func (r *ClassRepository) ExistsForContract(ctx context.Context, contractID string) (bool, error) {
	const query = `SELECT 1 FROM classes WHERE contract_id = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, contractID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class for contract: %w", err)
	}
	return true, nil
}

// FindByContract returns the class created from a contract.
func (r *ClassRepository) FindByContract(ctx context.Context, contractID string) (*models.Class, error) {
	const query = `SELECT id, contract_id, student_id, tutor_id, subject_id, session_count,
        session_duration_min, status, created_at FROM classes WHERE contract_id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, contractID); err != nil {
		return nil, err
	}
	return &class, nil
}
