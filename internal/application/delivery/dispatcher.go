// Package delivery sends rendered messages over the channel matching a
// verification method's kind.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-2fa-confirm/internal/domain"
	"github.com/go-2fa-confirm/internal/metrics"
)

// Channel delivers a message to one destination. Implementations must honor ctx.
type Channel interface {
	Send(ctx context.Context, destination string, msg domain.Message) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, destination string, msg domain.Message) error

func (f ChannelFunc) Send(ctx context.Context, destination string, msg domain.Message) error {
	return f(ctx, destination, msg)
}

// Dispatcher routes messages by method kind and bounds every send with a timeout.
type Dispatcher struct {
	channels map[domain.MethodKind]Channel
	timeout  time.Duration
	metrics  *metrics.Recorder
}

// NewDispatcher builds a dispatcher; channels without an entry cannot be used.
func NewDispatcher(timeout time.Duration, channels map[domain.MethodKind]Channel, rec *metrics.Recorder) *Dispatcher {
	return &Dispatcher{channels: channels, timeout: timeout, metrics: rec}
}

// Send delivers msg to method. Every failure, including a timeout, wraps
// domain.ErrDeliveryFailure and is safe to retry.
func (d *Dispatcher) Send(ctx context.Context, method domain.DeliveryMethod, msg domain.Message) error {
	ch, ok := d.channels[method.Kind]
	if !ok || ch == nil {
		d.metrics.DeliveryFailed(string(method.Kind))
		return fmt.Errorf("no channel for %q: %w", method.Kind, domain.ErrDeliveryFailure)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- ch.Send(ctx, method.Destination, msg) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		d.metrics.DeliveryFailed(string(method.Kind))
		slog.Warn("message delivery failed", "channel", method.Kind, "err", err)
		return fmt.Errorf("send via %s: %w", method.Kind, domain.ErrDeliveryFailure)
	}
	return nil
}
