package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/config"
	"github.com/FiveStarManagement/LWS-Workflow/internal/infrastructure/persistence/models"
)

// New creates the notifier selected by configuration. "log" emits alerts
// through the logger only; "outbox" appends them to the delivery table for
// an external mailer to drain.
func New(cfg config.NotifyConfig, db *gorm.DB, logger *zap.Logger) (workflow.Notifier, error) {
	switch cfg.Mode {
	case "log", "":
		return NewLogNotifier(cfg, logger), nil
	case "outbox":
		if db == nil {
			return nil, fmt.Errorf("notify: outbox mode requires a state database")
		}
		return NewOutboxNotifier(cfg, db, logger), nil
	default:
		return nil, fmt.Errorf("notify: unknown mode %q", cfg.Mode)
	}
}

// recipients resolves the configured address list for an audience. Unknown
// audiences route to the admin list so nothing is silently dropped.
func recipients(cfg config.NotifyConfig, audience workflow.Audience) []string {
	switch audience {
	case workflow.AudienceCSR:
		return cfg.CSREmails
	case workflow.AudienceAdmin:
		return cfg.AdminEmails
	default:
		return cfg.AdminEmails
	}
}

// ---------------------------------------------------------------------------
// Log Notifier
// ---------------------------------------------------------------------------

// LogNotifier emits notifications as structured log entries
type LogNotifier struct {
	cfg    config.NotifyConfig
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(cfg config.NotifyConfig, logger *zap.Logger) *LogNotifier {
	return &LogNotifier{cfg: cfg, logger: logger}
}

// Send logs the notification
func (n *LogNotifier) Send(ctx context.Context, notification workflow.Notification) error {
	n.logger.Warn("workflow notification",
		zap.String("audience", string(notification.Audience)),
		zap.String("subject", notification.Subject),
		zap.String("body", notification.Body),
		zap.Int("order_num", notification.OrderNum),
		zap.String("step", string(notification.Step)),
		zap.Strings("recipients", recipients(n.cfg, notification.Audience)))
	return nil
}

// Ensure LogNotifier implements workflow.Notifier
var _ workflow.Notifier = (*LogNotifier)(nil)

// ---------------------------------------------------------------------------
// Outbox Notifier
// ---------------------------------------------------------------------------

// OutboxNotifier appends notifications to the delivery table. Rows stay
// PENDING until the external mailer picks them up.
type OutboxNotifier struct {
	cfg    config.NotifyConfig
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewOutboxNotifier creates an OutboxNotifier on the state database
func NewOutboxNotifier(cfg config.NotifyConfig, db *gorm.DB, logger *zap.Logger) *OutboxNotifier {
	return &OutboxNotifier{cfg: cfg, db: db, logger: logger, now: time.Now}
}

// Send enqueues the notification for delivery
func (n *OutboxNotifier) Send(ctx context.Context, notification workflow.Notification) error {
	addrs := recipients(n.cfg, notification.Audience)
	encoded, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("notify: encode recipients: %w", err)
	}

	model := models.NotificationOutboxModel{
		ID:         uuid.New(),
		Audience:   string(notification.Audience),
		Subject:    notification.Subject,
		Body:       notification.Body,
		Recipients: string(encoded),
		OrderNum:   notification.OrderNum,
		Step:       string(notification.Step),
		Status:     models.NotificationPending,
		CreatedAt:  n.now(),
	}
	if err := n.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("notify: enqueue notification: %w", err)
	}

	n.logger.Info("notification enqueued",
		zap.String("id", model.ID.String()),
		zap.String("audience", model.Audience),
		zap.Int("order_num", model.OrderNum))
	return nil
}

// Ensure OutboxNotifier implements workflow.Notifier
var _ workflow.Notifier = (*OutboxNotifier)(nil)
