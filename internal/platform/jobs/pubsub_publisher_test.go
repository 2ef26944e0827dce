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

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
)

func TestPubSubPedidoEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "pedido-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPedidoEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPedidoEventPublisher: %v", err)
	}

	event := domain.PedidoEvent{
		PedidoID:   "ped_test",
		Type:       "pedido.estado.changed",
		FromStatus: domain.PedidoStatusConfirmado,
		ToStatus:   domain.PedidoStatusEsperandoPago,
		ActorEmail: "comprador@example.com",
		OccurredAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	if err := publisher.PublishPedidoEvent(ctx, event); err != nil {
		t.Fatalf("PublishPedidoEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload domain.PedidoEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PedidoID != event.PedidoID || payload.ToStatus != event.ToStatus {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["type"]; attr != "pedido.estado.changed" {
		t.Fatalf("expected type attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["pedidoId"]; attr != "ped_test" {
		t.Fatalf("expected pedidoId attribute, got %q", attr)
	}
}

func TestNewPubSubPedidoEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPedidoEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
