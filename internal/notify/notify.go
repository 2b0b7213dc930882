// Package notify delivers fire-and-forget transition events to the
// configured sinks: the log, the per-user outbox and chat webhooks.
package notify

import (
	"context"
	"time"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/logging"
	"github.com/yazid-hub/GMOA/internal/metrics"
	"go.uber.org/zap"
)

// Event kinds, used for colors and the outbox.
const (
	KindInfo    = "info"
	KindSuccess = "success"
	KindWarning = "warning"
	KindDanger  = "danger"
)

// Event is a state transition worth telling someone about.
type Event struct {
	Type       string // e.g. "work_order.closed"
	EntityType string
	EntityID   string
	Title      string
	Body       string
	Kind       string
	Recipients []string // user IDs
	Team       string      // optional team whose members are also recipients
	Roles      []auth.Role // users holding these roles are also recipients
	Fields     map[string]string
	At         time.Time
}

// Sink delivers events somewhere.
type Sink interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Notifier fans events out to sinks. Delivery failures are logged and
// counted, never returned to the caller.
type Notifier struct {
	sinks []Sink
	log   *zap.Logger
}

// New creates a notifier over sinks.
func New(log *zap.Logger, sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, log: logging.OrNop(log)}
}

// Publish sends ev to every sink. A nil notifier drops events.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	if n == nil {
		return
	}
	if ev.Kind == "" {
		ev.Kind = KindInfo
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	for _, s := range n.sinks {
		if err := s.Notify(ctx, ev); err != nil {
			metrics.NotificationFailures.WithLabelValues(s.Name()).Inc()
			n.log.Warn("notification failed",
				zap.String("sink", s.Name()),
				zap.String("event", ev.Type),
				zap.String("entity", ev.EntityID),
				zap.Error(err))
		}
	}
}

// LogSink writes events to the logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: logging.OrNop(log)}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(_ context.Context, ev Event) error {
	s.log.Info(ev.Title,
		zap.String("event", ev.Type),
		zap.String("entity_type", ev.EntityType),
		zap.String("entity_id", ev.EntityID),
		zap.Strings("recipients", ev.Recipients))
	return nil
}

// color maps an event kind to a hex color.
func color(kind string) string {
	switch kind {
	case KindSuccess:
		return "#27ae60"
	case KindWarning:
		return "#f39c12"
	case KindDanger:
		return "#c0392b"
	default:
		return "#3498db"
	}
}
