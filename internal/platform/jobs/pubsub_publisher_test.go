package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loyalcart/api/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	return srv, topic
}

func TestPubSubNotificationPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv, topic := newTestTopic(t, "notifications")

	publisher, err := NewPubSubNotificationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}

	msg := services.NotificationMessage{
		NotificationID: "ntf_test",
		UserID:         "user-1",
		Category:       "ORDER",
		Title:          "Order confirmed",
		Body:           "Your order ORD-42 is confirmed.",
		CreatedAt:      time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if _, err := publisher.PublishNotification(ctx, msg); err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.NotificationMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.NotificationID != msg.NotificationID || payload.UserID != msg.UserID {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["category"]; attr != "ORDER" {
		t.Fatalf("expected category attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["userId"]; attr != "user-1" {
		t.Fatalf("expected userId attribute, got %q", attr)
	}
}

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv, topic := newTestTopic(t, "order-events")

	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	msg := services.OrderEventMessage{
		Event:      "order.confirmed",
		OrderID:    "ord_test",
		UserID:     "user-1",
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}

	if _, err := publisher.PublishOrderEvent(ctx, msg); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if attr := messages[0].Attributes["event"]; attr != "order.confirmed" {
		t.Fatalf("expected event attribute, got %q", attr)
	}
}
