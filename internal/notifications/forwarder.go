package notifications

import (
	"context"
	"log/slog"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/logging"
	"sloppy/internal/notify"
)

// Lookup resolves the item and job behind an outcome message.
type Lookup interface {
	Get(ctx context.Context, id string) (*content.Item, error)
	GetJob(ctx context.Context, jobID string) (*content.JobRecord, error)
}

// Forwarder turns outcomes on the aggregate channel into push alerts.
type Forwarder struct {
	hub       *notify.Hub
	lookup    Lookup
	service   Service
	published bool
	failures  bool
	logger    *slog.Logger
}

// NewForwarder builds a forwarder using the [notifications] config section.
func NewForwarder(hub *notify.Hub, lookup Lookup, service Service, cfg *config.Config, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		hub:       hub,
		lookup:    lookup,
		service:   service,
		published: cfg.Notifications.Published,
		failures:  cfg.Notifications.Failures,
		logger:    logging.NewComponentLogger(logger, "notifications"),
	}
}

// Run follows the aggregate channel until ctx is cancelled. If the hub drops
// the forwarder for falling behind, it subscribes again.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		sub := f.hub.Connect()
		f.hub.Join(sub, notify.AggregateChannel)
		if !f.drain(ctx, sub) {
			f.hub.Disconnect(sub, "shutdown")
			return nil
		}
		logging.WarnWithContext(f.logger, "notification forwarder fell behind; resubscribing", "notification_forwarder_dropped",
			logging.String(logging.FieldErrorHint, "raise channel.buffer_size or check ntfy latency"),
		)
	}
}

// drain reports true when the hub closed the subscription.
func (f *Forwarder) drain(ctx context.Context, sub *notify.Subscriber) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-sub.Messages():
			if !ok {
				return true
			}
			if msg.Type == notify.TypeJobOutcome {
				f.Handle(ctx, msg)
			}
		}
	}
}

// Handle sends the alert, if any, for one outcome.
func (f *Forwarder) Handle(ctx context.Context, msg notify.Message) {
	job, err := f.lookup.GetJob(ctx, msg.JobID)
	if err != nil || job == nil {
		f.logger.Debug("outcome without job record", logging.String(logging.FieldJobID, msg.JobID), logging.Error(err))
		return
	}
	item, err := f.lookup.Get(ctx, msg.ItemID)
	if err != nil {
		f.logger.Debug("outcome item lookup failed", logging.String(logging.FieldItemID, msg.ItemID), logging.Error(err))
	}

	switch {
	case msg.Status == notify.StatusFailed && f.failures:
		err = f.service.NotifyJobFailed(ctx, item, job.Kind, msg.Error)
	case msg.Status == notify.StatusCompleted && job.Kind == content.KindPublish && f.published:
		err = f.service.NotifyPublished(ctx, item)
	default:
		return
	}
	if err != nil {
		logging.WarnWithContext(f.logger, "push notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldJobID, msg.JobID),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
		)
	}
}
