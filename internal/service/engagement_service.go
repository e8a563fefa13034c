package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/internal/models"
)

type classRepository interface {
	Create(ctx context.Context, class *models.Class) error
	ExistsForContract(ctx context.Context, contractID string) (bool, error)
	FindByContract(ctx context.Context, contractID string) (*models.Class, error)
}

// EngagementService creates the teaching arrangement once a contract is
// fully signed. The contract lifecycle invokes it exactly once per
// contract; the contract-id uniqueness check makes a retried invocation
// harmless.
type EngagementService struct {
	classes classRepository
	logger  *zap.Logger
}

// NewEngagementService constructs EngagementService.
func NewEngagementService(classes classRepository, logger *zap.Logger) *EngagementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngagementService{classes: classes, logger: logger}
}

// Activate creates the class for a freshly signed contract.
func (s *EngagementService) Activate(ctx context.Context, contract *models.Contract) error {
	exists, err := s.classes.ExistsForContract(ctx, contract.ID)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Sugar().Infow("class already exists for contract", "contract_id", contract.ID)
		return nil
	}

	class := &models.Class{
		ContractID:      contract.ID,
		StudentID:       contract.StudentID,
		TutorID:         contract.TutorID,
		SubjectID:       contract.SubjectID,
		SessionCount:    contract.SessionCount,
		SessionDuration: contract.SessionDuration,
		Status:          models.ClassStatusScheduled,
	}
	return s.classes.Create(ctx, class)
}
