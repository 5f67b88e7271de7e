// Package notify fans imminent-match alerts out to subscribers and drives
// the bounded retry of failed deliveries. Every delivery outcome is recorded
// as a NotificationRecord; a failure for one recipient never blocks the rest.
package notify

import (
	"context"
	"time"

	"matchbell/internal/model"
	"matchbell/internal/storage"
	"matchbell/pkg/logx"
)

// Transport delivers one rendered message to one recipient.
type Transport interface {
	Send(ctx context.Context, recipient, text string) error
}

type Config struct {
	// MaxRetries is the per-notification retry budget (attempts after the
	// first failure, default 3).
	MaxRetries int
	// RetryWindow bounds how old a failed record may be and still qualify
	// for retry (default 24h).
	RetryWindow time.Duration
	// Timezone used when rendering match times. Nil means UTC.
	Location *time.Location
}

// Dispatcher resolves which subscribers care about a match and delivers one
// alert each.
type Dispatcher struct {
	store     storage.Store
	transport Transport
	cfg       Config
	log       logx.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewDispatcher(store storage.Store, transport Transport, cfg Config, log logx.Logger) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{store: store, transport: transport, cfg: cfg, log: log, now: time.Now}
}

// DispatchForMatch sends one alert per active subscriber whose team set
// intersects the match. It returns the sent and failed counts; the error is
// only non-nil when the subscriber list itself could not be read.
func (d *Dispatcher) DispatchForMatch(ctx context.Context, m model.Match) (sent, failed int, err error) {
	subs, err := d.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, 0, err
	}

	message := RenderAlert(m, d.now(), d.cfg.Location)
	for _, sub := range subs {
		if !sub.HasTeam(m.Team1.Name) && !sub.HasTeam(m.Team2.Name) {
			continue
		}
		if d.deliverOne(ctx, sub.UserID, m.ID, message) {
			sent++
		} else {
			failed++
		}
	}
	if sent+failed > 0 {
		d.log.Info("dispatched match alerts",
			logx.String("match_id", m.ID),
			logx.Int("sent", sent),
			logx.Int("failed", failed))
	}
	return sent, failed, nil
}

// deliverOne records the attempt lifecycle: pending, then sent or failed.
func (d *Dispatcher) deliverOne(ctx context.Context, userID, matchID, message string) bool {
	rec := model.NewNotificationRecord(userID, matchID, message)
	if err := d.store.SaveNotification(ctx, rec); err != nil {
		d.log.Error("failed recording pending notification",
			logx.String("user_id", userID), logx.Err(err))
		return false
	}

	sendErr := d.transport.Send(ctx, userID, message)
	if sendErr != nil {
		rec.MarkFailed(sendErr.Error())
		d.log.Warn("alert delivery failed",
			logx.String("user_id", userID),
			logx.String("match_id", matchID),
			logx.Err(sendErr))
	} else {
		rec.MarkSent()
	}
	if err := d.store.SaveNotification(ctx, rec); err != nil {
		d.log.Error("failed recording notification outcome",
			logx.String("notification_id", rec.ID), logx.Err(err))
	}
	return sendErr == nil
}

// DispatchImminent runs the detection pass: load the cached schedule, find
// matches inside the alert window, and dispatch each.
func (d *Dispatcher) DispatchImminent(ctx context.Context) error {
	matches, err := d.store.ListCachedMatches(ctx)
	if err != nil {
		return err
	}
	imminent := ImminentMatches(matches, d.now())
	if len(imminent) == 0 {
		d.log.Debug("no imminent matches")
		return nil
	}
	for _, m := range imminent {
		if _, _, err := d.DispatchForMatch(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
