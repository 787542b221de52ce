// Package notifications delivers order lifecycle notifications through a
// Pub/Sub topic consumed by the notification fan-out workers.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/dentastore/api/internal/services"
)

const notificationIDPrefix = "ntf_"

// message is the wire form of a notification envelope.
type message struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	UserID   string            `json:"userId,omitempty"`
	Role     string            `json:"role,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	SentAt   time.Time         `json:"sentAt"`
}

// PubSubNotifier implements services.Notifier on a Pub/Sub topic. Audience
// routing travels in message attributes so subscribers can filter without
// decoding payloads.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	clock   func() time.Time
	newID   func() string
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{
		topic: topic,
		clock: time.Now,
		newID: func() string {
			return notificationIDPrefix + ulid.Make().String()
		},
		marshal: json.Marshal,
	}, nil
}

// Notify publishes the notification. Exactly one audience must be set:
// a user id for direct delivery or a role for a broadcast.
func (n *PubSubNotifier) Notify(ctx context.Context, notification services.Notification) error {
	if n == nil || n.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	userID := strings.TrimSpace(notification.UserID)
	role := strings.TrimSpace(notification.Role)
	if (userID == "") == (role == "") {
		return errors.New("pubsub notifier: exactly one of user id or role is required")
	}

	// The message id doubles as a dedup key for at-least-once consumers.
	msgID := n.newID()
	data, err := n.marshal(message{
		ID:       msgID,
		Title:    notification.Title,
		Body:     notification.Body,
		UserID:   userID,
		Role:     role,
		Metadata: notification.Metadata,
		SentAt:   n.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string, 3)
	attrs["messageId"] = msgID
	if userID != "" {
		attrs["audience"] = "user"
		attrs["userId"] = userID
	} else {
		attrs["audience"] = "role"
		attrs["role"] = role
	}
	if orderID := strings.TrimSpace(notification.Metadata["orderId"]); orderID != "" {
		attrs["orderId"] = orderID
	}

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
