// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package alerting

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/safelink/sentinel/internal/logging"
	"github.com/safelink/sentinel/internal/metrics"
)

// Sink receives committed alert transitions: the external store, a webhook
// forwarder, a notifier. Deliver must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, ev *Event) error
}

// DispatcherConfig configures delivery resilience.
type DispatcherConfig struct {
	// MaxRetries bounds the backoff retry attempts per message before it is
	// nacked back to the bus for redelivery.
	MaxRetries uint64 `koanf:"max_retries"`

	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially.
	InitialBackoff time.Duration `koanf:"initial_backoff"`

	// RatePerSecond caps sink deliveries. Zero disables rate limiting.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// RateBurst is the limiter burst size.
	RateBurst int `koanf:"rate_burst"`

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the circuit.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// DefaultDispatcherConfig returns production delivery defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxRetries:              5,
		InitialBackoff:          100 * time.Millisecond,
		RatePerSecond:           50,
		RateBurst:               10,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
	}
}

// Dispatcher consumes the alert bus and delivers each transition to the
// sink. A failed delivery is retried with exponential backoff behind a
// circuit breaker; exhausted messages are nacked and redelivered by the
// bus, so a transition is never lost to a downstream outage.
//
// Implements suture.Service.
type Dispatcher struct {
	bus     *Bus
	sink    Sink
	cfg     DispatcherConfig
	breaker *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
}

// NewDispatcher creates a dispatcher over the given bus and sink.
func NewDispatcher(bus *Bus, sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultDispatcherConfig().MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultDispatcherConfig().InitialBackoff
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = DefaultDispatcherConfig().BreakerFailureThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultDispatcherConfig().BreakerTimeout
	}

	d := &Dispatcher{bus: bus, sink: sink, cfg: cfg}
	d.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "alert-sink",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerOpen(to == gobreaker.StateOpen)
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return d
}

// Serve implements suture.Service: consume until the context is canceled.
// Returns ctx.Err() on normal shutdown so the supervisor does not restart.
func (d *Dispatcher) Serve(ctx context.Context) error {
	msgs, err := d.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	logging.Info().Msg("alert dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			d.handle(ctx, msg)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (d *Dispatcher) String() string { return "alert-dispatcher" }

// handle delivers one message, acking only after the sink accepted it.
func (d *Dispatcher) handle(ctx context.Context, msg *message.Message) {
	ev, err := DecodeEvent(msg)
	if err != nil {
		// Malformed payloads cannot succeed on redelivery; drop with a log
		// instead of poisoning the stream.
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("drop undecodable alert event")
		msg.Ack()
		return
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			msg.Nack()
			return
		}
	}

	if err := d.deliver(ctx, ev); err != nil {
		logging.Error().Err(err).
			Str("entity_id", ev.EntityID).
			Str("alert_type", string(ev.AlertType)).
			Str("new_status", string(ev.NewStatus)).
			Msg("alert delivery failed, nacking for redelivery")
		metrics.RecordSinkDelivery("nack")
		msg.Nack()
		return
	}
	metrics.RecordSinkDelivery("ok")
	msg.Ack()
}

// deliver pushes one event through the breaker with bounded backoff retry.
func (d *Dispatcher) deliver(ctx context.Context, ev *Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff

	operation := func() error {
		_, err := d.breaker.Execute(func() (any, error) {
			return nil, d.sink.Deliver(ctx, ev)
		})
		if err != nil {
			// An open breaker fails fast; waiting out the retry budget on
			// it is pointless.
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return backoff.Permanent(err)
			}
			metrics.RecordSinkDelivery("retry")
			return err
		}
		return nil
	}

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, d.cfg.MaxRetries), ctx))
}
