package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency     = 16
	defaultDeliveryTimeout = 5 * time.Second
)

// FormatMessage builds the outbound text every recipient sees.
func FormatMessage(senderID, message string) []byte {
	return []byte(senderID + " says " + message)
}

// DeliveryFailure describes one recipient whose delivery did not end cleanly.
// Status is DeliveryTransient for push failures and DeliveryGone when the
// connection was gone but pruning it failed.
type DeliveryFailure struct {
	ConnectionID string
	Status       domain.DeliveryStatus
	Err          error
}

// Report summarizes one fan-out.
type Report struct {
	Attempted int
	Delivered int
	Pruned    []string
	Failures  []DeliveryFailure
	Duration  time.Duration
}

type connectionRegistry interface {
	Enumerate(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, connectionID string) error
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithConcurrency bounds the number of in-flight deliveries. 1 delivers sequentially.
func WithConcurrency(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithDeliveryTimeout bounds each individual push.
func WithDeliveryTimeout(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		if d > 0 {
			b.deliveryTimeout = d
		}
	}
}

// WithBroadcastMetrics records fan-out metrics on m.
func WithBroadcastMetrics(m *metrics.BroadcastMetrics) BroadcasterOption {
	return func(b *Broadcaster) { b.metrics = m }
}

// Broadcaster delivers a message to every registered connection and prunes the
// ones the delivery channel reports gone.
type Broadcaster struct {
	registry        connectionRegistry
	clock           clockwork.Clock
	concurrency     int
	deliveryTimeout time.Duration
	metrics         *metrics.BroadcastMetrics
}

func NewBroadcaster(registry connectionRegistry, clock clockwork.Clock, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		registry:        registry,
		clock:           clock,
		concurrency:     defaultConcurrency,
		deliveryTimeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type outcome struct {
	status domain.DeliveryStatus
	err    error
	pruned bool
}

// BroadcastAndReconcile pushes "<senderID> says <message>" to every connection in a
// registry snapshot, the sender included.
//
// Only a failed enumeration is returned as an error. Per-recipient failures are
// isolated: a transient failure keeps the connection and never stops delivery to
// the others, a gone connection is removed from the registry. Both are reported.
func (b *Broadcaster) BroadcastAndReconcile(ctx context.Context, channel domain.DeliveryChannel, senderID, message string) (*Report, error) {
	start := b.clock.Now()

	ids, err := b.registry.Enumerate(ctx)
	if err != nil {
		b.observeBroadcast("error")
		return nil, fmt.Errorf("broadcast: %w", err)
	}

	data := FormatMessage(senderID, message)
	outcomes := make([]outcome, len(ids))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = b.deliver(ctx, channel, id, data)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Attempted: len(ids)}
	for i, o := range outcomes {
		id := ids[i]
		switch {
		case o.status == domain.DeliveryOK:
			report.Delivered++
		case o.pruned:
			report.Pruned = append(report.Pruned, id)
		default:
			report.Failures = append(report.Failures, DeliveryFailure{ConnectionID: id, Status: o.status, Err: o.err})
		}
	}
	report.Duration = b.clock.Since(start)

	b.observeReport(report)
	slog.InfoContext(ctx, "Broadcast completed",
		"sender_id", senderID,
		"recipients", report.Attempted,
		"delivered", report.Delivered,
		"pruned", len(report.Pruned),
		"failed", len(report.Failures),
		"duration", report.Duration,
	)

	return report, nil
}

func (b *Broadcaster) deliver(ctx context.Context, channel domain.DeliveryChannel, connectionID string, data []byte) outcome {
	pushCtx, cancel := context.WithTimeout(ctx, b.deliveryTimeout)
	status, err := channel.Push(pushCtx, connectionID, data)
	cancel()

	switch status {
	case domain.DeliveryOK:
		if err == nil {
			return outcome{status: domain.DeliveryOK}
		}
		// an error without a status is still a failed push
		status = domain.DeliveryTransient
	case domain.DeliveryGone:
		if rmErr := b.registry.Remove(ctx, connectionID); rmErr != nil {
			slog.ErrorContext(ctx, "Failed to prune gone connection", "connection_id", connectionID, "error", rmErr)
			return outcome{status: domain.DeliveryGone, err: rmErr}
		}
		slog.InfoContext(ctx, "Pruned gone connection", "connection_id", connectionID)
		return outcome{status: domain.DeliveryGone, pruned: true}
	case domain.DeliveryTransient:
		// EMPTY
	default:
		err = fmt.Errorf("unknown delivery status %s: %w", status, err)
		status = domain.DeliveryTransient
	}

	if err == nil {
		err = domain.ErrTransientDelivery
	}
	slog.WarnContext(ctx, "Delivery failed, keeping connection", "connection_id", connectionID, "error", err)
	return outcome{status: status, err: err}
}

func (b *Broadcaster) observeBroadcast(result string) {
	if b.metrics == nil {
		return
	}
	b.metrics.Broadcasts.WithLabelValues(result).Inc()
}

func (b *Broadcaster) observeReport(r *Report) {
	if b.metrics == nil {
		return
	}
	b.metrics.Broadcasts.WithLabelValues("completed").Inc()
	b.metrics.Recipients.Observe(float64(r.Attempted))
	b.metrics.Duration.Observe(r.Duration.Seconds())
	b.metrics.Deliveries.WithLabelValues(domain.DeliveryOK.String()).Add(float64(r.Delivered))
	b.metrics.Deliveries.WithLabelValues(domain.DeliveryGone.String()).Add(float64(len(r.Pruned)))
	b.metrics.Pruned.Add(float64(len(r.Pruned)))
	for _, f := range r.Failures {
		b.metrics.Deliveries.WithLabelValues(f.Status.String()).Inc()
	}
}
