package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/logging"
	"github.com/restitch/restitch/internal/models"
	"github.com/restitch/restitch/internal/observability"
)

const defaultNotificationTimeout = 15 * time.Second

// Config tunes the workflow services. Zero values fall back to defaults.
type Config struct {
	NotificationTimeout      time.Duration
	ResaleFallbackPriceCents int
}

func (c Config) withDefaults() Config {
	if c.NotificationTimeout <= 0 {
		c.NotificationTimeout = defaultNotificationTimeout
	}
	if c.ResaleFallbackPriceCents <= 0 {
		c.ResaleFallbackPriceCents = DefaultResalePriceCents
	}
	return c
}

// workflow is the shared transition runner behind the pickup, order and reward
// services: authorize, run one transaction, then fire notifications.
type workflow struct {
	store    db.Store
	notifier Notifier
	logger   *slog.Logger
	config   Config
	clock    func() time.Time
	pending  sync.WaitGroup
}

func newWorkflow(store db.Store, notifier Notifier, logger *slog.Logger, config Config) *workflow {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &workflow{
		store:    store,
		notifier: notifier,
		logger:   logger,
		config:   config.withDefaults(),
		clock:    time.Now,
	}
}

func (w *workflow) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, w.logger)
}

type transition struct {
	action     string
	capability authz.Capability
	principal  authz.Principal
	subject    models.SubjectType
	subjectID  int64
}

func (w *workflow) run(ctx context.Context, t transition, fn func(ctx context.Context, tx db.Tx) error) error {
	span := sentry.StartSpan(
		ctx,
		"service.workflow."+t.action,
		sentry.WithOpName("service.workflow"),
		sentry.WithDescription(t.action),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := w.loggerFromContext(ctx).With(
		"action", t.action,
		"subject_type", string(t.subject),
		"subject_id", t.subjectID,
		"actor_id", t.principal.UserID,
		"actor_role", string(t.principal.Role),
	)
	err := authz.Require(t.principal, t.capability)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	} else {
		err = classify(w.store.InTx(ctx, fn))
	}

	if err != nil {
		reason := failureReason(err)
		if errors.Is(err, ErrPersistence) {
			observability.RecordTransition(ctx, t.action, observability.OutcomeFailed, reason)
			span.Status = sentry.SpanStatusInternalError
			logger.Error("workflow transition failed", "reason", reason, "error", err)
		} else {
			observability.RecordTransition(ctx, t.action, observability.OutcomeRefused, reason)
			span.Status = sentry.SpanStatusFailedPrecondition
			logger.Info("workflow transition refused", "reason", reason, "error", err)
		}
		return err
	}

	span.Status = sentry.SpanStatusOK
	observability.RecordTransition(ctx, t.action, observability.OutcomeApplied, "")
	logger.Info("workflow transition applied")
	return nil
}

// notify sends a notification in the background. Failures are logged and
// never reach the caller.
func (w *workflow) notify(ctx context.Context, kind string, send func(ctx context.Context) error) {
	logger := w.loggerFromContext(ctx).With("notification", kind)
	ctx = context.WithoutCancel(ctx)

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()

		sendCtx, cancel := context.WithTimeout(ctx, w.config.NotificationTimeout)
		defer cancel()

		if err := send(sendCtx); err != nil {
			observability.RecordNotificationFailure(sendCtx, kind)
			logger.Warn("failed to send notification", "error", err)
			return
		}
		logger.Debug("notification sent")
	}()
}

// Drain blocks until in-flight notifications finish. Call it on shutdown.
func (w *workflow) Drain() {
	w.pending.Wait()
}

func (w *workflow) record(ctx context.Context, tx db.Tx, actor authz.Principal, subject models.SubjectType, subjectID int64, action string, metadata map[string]any) error {
	entry := &models.ActivityLog{
		SubjectType: subject,
		SubjectID:   subjectID,
		Action:      action,
		Metadata:    metadata,
		UserID:      actor.UserID,
	}
	if err := tx.AppendActivity(ctx, entry); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
