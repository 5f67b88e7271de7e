package notify

import (
	"context"
	"time"

	"matchbell/internal/model"
	"matchbell/internal/storage"
	"matchbell/pkg/logx"
)

// retryPageSize bounds how many failed records one page query returns.
const retryPageSize = 100

// Coordinator re-sends failed notifications that are still inside the retry
// window and under the retry budget.
type Coordinator struct {
	store     storage.Store
	transport Transport
	cfg       Config
	log       logx.Logger

	now func() time.Time
}

func NewCoordinator(store storage.Store, transport Transport, cfg Config, log logx.Logger) *Coordinator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{store: store, transport: transport, cfg: cfg, log: log, now: time.Now}
}

// RetryFailed walks all eligible failed records and re-sends the stored
// message text verbatim. The candidate set is paged out in full before any
// resend mutates the table, so updated rows cannot shift the pagination.
func (c *Coordinator) RetryFailed(ctx context.Context) (retried, recovered int, err error) {
	since := c.now().Add(-c.cfg.RetryWindow)

	var candidates []model.NotificationRecord
	for offset := 0; ; offset += retryPageSize {
		page, err := c.store.ListRetryableNotifications(ctx, since, c.cfg.MaxRetries, retryPageSize, offset)
		if err != nil {
			return 0, 0, err
		}
		candidates = append(candidates, page...)
		if len(page) < retryPageSize {
			break
		}
	}
	if len(candidates) == 0 {
		c.log.Debug("no notifications to retry")
		return 0, 0, nil
	}

	for _, rec := range candidates {
		if !rec.CanRetry(c.cfg.MaxRetries) {
			continue
		}
		retried++
		sendErr := c.transport.Send(ctx, rec.UserID, rec.Message)
		if sendErr != nil {
			rec.MarkFailed(sendErr.Error())
		} else {
			rec.MarkSent()
			recovered++
		}
		if err := c.store.SaveNotification(ctx, rec); err != nil {
			c.log.Error("failed recording retry outcome",
				logx.String("notification_id", rec.ID), logx.Err(err))
		}
	}
	c.log.Info("retry pass complete",
		logx.Int("retried", retried),
		logx.Int("recovered", recovered))
	return retried, recovered, nil
}
