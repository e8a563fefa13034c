package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

// NegotiationRepository reads accepted tutoring requests.
type NegotiationRepository struct {
	db *sqlx.DB
}

// NewNegotiationRepository constructs the repository.
func NewNegotiationRepository(db *sqlx.DB) *NegotiationRepository {
	return &NegotiationRepository{db: db}
}

// FindByID returns a negotiation by its ID.
func (r *NegotiationRepository) FindByID(ctx context.Context, id string) (*models.Negotiation, error) {
	const query = `SELECT id, student_id, tutor_id, subject_id, price_per_session,
        session_count, status, created_at FROM negotiations WHERE id = $1`
	var negotiation models.Negotiation
	if err := r.db.GetContext(ctx, &negotiation, query, id); err != nil {
		return nil, err
	}
	return &negotiation, nil
}
