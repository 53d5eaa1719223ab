package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sba-transport-api/internal/models"
	appErrors "github.com/noah-isme/sba-transport-api/pkg/errors"
	"github.com/noah-isme/sba-transport-api/pkg/jobs"
)

// JobTypeNotification labels queued notification writes.
const JobTypeNotification = "notification.create"

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, kind models.RecipientKind, limit int) ([]models.Notification, error)
}

type adminDirectory interface {
	ListActiveAdmins(ctx context.Context) ([]models.User, error)
}

type notificationQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationGateway is the fire-and-forget surface the workflow uses. A
// delivery failure must never surface to the caller.
type NotificationGateway interface {
	NotifyGuardian(ctx context.Context, guardianID, title, body string, severity models.NotificationSeverity)
	NotifyAdmins(ctx context.Context, title, body string, severity models.NotificationSeverity)
}

// NotificationService enqueues in-app notifications for asynchronous
// persistence and serves recipient inboxes.
type NotificationService struct {
	repo   notificationStore
	admins adminDirectory
	queue  notificationQueue
	logger *zap.Logger
}

// NewNotificationService constructs the service. The queue is wired
// afterwards via SetQueue because the queue handler is this service.
func NewNotificationService(repo notificationStore, admins adminDirectory, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, admins: admins, logger: logger}
}

// SetQueue attaches the dispatch queue.
func (s *NotificationService) SetQueue(queue notificationQueue) {
	s.queue = queue
}

// NotifyGuardian enqueues a notification addressed to a guardian.
func (s *NotificationService) NotifyGuardian(ctx context.Context, guardianID, title, body string, severity models.NotificationSeverity) {
	s.enqueue(models.Notification{
		RecipientID:   guardianID,
		RecipientKind: models.RecipientGuardian,
		Title:         title,
		Body:          body,
		Severity:      severity,
	})
}

// NotifyAdmins fans a notification out to every active administrator.
func (s *NotificationService) NotifyAdmins(ctx context.Context, title, body string, severity models.NotificationSeverity) {
	admins, err := s.admins.ListActiveAdmins(ctx)
	if err != nil {
		s.logger.Warn("failed to list admins for notification", zap.Error(err))
		return
	}
	for _, admin := range admins {
		s.enqueue(models.Notification{
			RecipientID:   admin.ID,
			RecipientKind: models.RecipientAdmin,
			Title:         title,
			Body:          body,
			Severity:      severity,
		})
	}
}

func (s *NotificationService) enqueue(notification models.Notification) {
	if s.queue == nil {
		s.logger.Warn("notification queue not attached, dropping notification",
			zap.String("recipient_id", notification.RecipientID))
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeNotification,
		Payload: notification,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("recipient_id", notification.RecipientID), zap.Error(err))
	}
}

// HandleJob persists a queued notification. It is the queue worker handler.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	return nil
}

// ListForActor returns the caller's notifications. Guardians see their
// guardian inbox, administrators their admin inbox.
func (s *NotificationService) ListForActor(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleGuardian:
		if actor.GuardianID == "" {
			return nil, appErrors.ErrForbidden
		}
		return s.list(ctx, actor.GuardianID, models.RecipientGuardian, limit)
	case models.RoleAdmin, models.RoleSuperAdmin:
		return s.list(ctx, actor.UserID, models.RecipientAdmin, limit)
	default:
		return nil, appErrors.ErrForbidden
	}
}

func (s *NotificationService) list(ctx context.Context, recipientID string, kind models.RecipientKind, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByRecipient(ctx, recipientID, kind, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}
