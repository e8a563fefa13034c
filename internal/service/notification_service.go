package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/config"
	"github.com/TrunderHunter/SkillBridgeBE-sub003/pkg/jobs"
)

// Notification event types emitted by the contract lifecycle.
const (
	EventContractSubmitted = "CONTRACT_SUBMITTED"
	EventContractApproved  = "CONTRACT_APPROVED"
	EventContractRejected  = "CONTRACT_REJECTED"
	EventContractChanges   = "CONTRACT_CHANGES_REQUESTED"
	EventContractSigned    = "CONTRACT_SIGNED"
	EventContractActivated = "CONTRACT_ACTIVATED"
	EventContractCancelled = "CONTRACT_CANCELLED"
	EventContractCompleted = "CONTRACT_COMPLETED"
	EventPaymentRecorded   = "PAYMENT_RECORDED"
	EventInstallmentDue    = "INSTALLMENT_DUE"
)

// NotificationPayload is the queued delivery unit.
type NotificationPayload struct {
	UserID    string                 `json:"user_id"`
	EventType string                 `json:"event_type"`
	Data      map[string]interface{} `json:"data"`
}

// NotificationDeliverer pushes one notification to its transport (email,
// push, websocket). Implementations live outside the core.
type NotificationDeliverer interface {
	Deliver(ctx context.Context, payload NotificationPayload) error
}

// LoggingDeliverer is the development transport: it logs deliveries.
type LoggingDeliverer struct {
	Logger *zap.Logger
}

// Deliver logs the notification.
func (d *LoggingDeliverer) Deliver(ctx context.Context, payload NotificationPayload) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Sugar().Infow("notification", "user_id", payload.UserID, "event", payload.EventType)
	return nil
}

// NotificationService dispatches fire-and-forget notifications through the
// background queue. Failures are retried by the queue and never surface to
// the caller: a lost notification must not affect contract state.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs the service and its backing queue.
// Start must be called before notifications flow.
func NewNotificationService(deliverer NotificationDeliverer, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(NotificationPayload)
		if !ok {
			logger.Sugar().Errorw("notification job with unexpected payload", "job_id", job.ID)
			return nil
		}
		return deliverer.Deliver(ctx, payload)
	}
	queue := jobs.NewQueue("notifications", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return &NotificationService{queue: queue, logger: logger}
}

// Start begins background dispatch.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues a notification. Errors are logged, never returned.
func (s *NotificationService) Notify(userID, eventType string, data map[string]interface{}) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: NotificationPayload{UserID: userID, EventType: eventType, Data: data},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("notification enqueue failed", "user_id", userID, "event", eventType, "error", err)
	}
}
