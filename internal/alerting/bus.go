// SafeLink Sentinel - IoT Telemetry Safety and Security Core
// Copyright 2026 SafeLink contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/safelink/sentinel

package alerting

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"
)

// TopicAlertEvents is the bus topic carrying alert state transitions.
const TopicAlertEvents = "alerts.events"

// Bus is the in-process alert event bus: a watermill gochannel pub/sub with
// persistent delivery so a subscriber attached after startup still receives
// buffered transitions.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the alert event bus.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
	}
}

// Publish serializes one event onto the bus. Implements Publisher.
func (b *Bus) Publish(ev *Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("entity_id", ev.EntityID)
	msg.Metadata.Set("alert_type", string(ev.AlertType))
	msg.Metadata.Set("new_status", string(ev.NewStatus))

	if err := b.pubsub.Publish(TopicAlertEvents, msg); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	return nil
}

// Subscribe returns the raw message stream for the alert topic. Messages
// must be acked or nacked by the consumer; a nack redelivers.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, TopicAlertEvents)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicAlertEvents, err)
	}
	return ch, nil
}

// DecodeEvent unmarshals one bus message back into an Event.
func DecodeEvent(msg *message.Message) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal alert event: %w", err)
	}
	return &ev, nil
}

// Close shuts the bus down; in-flight subscribers see their channels close.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
