package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	domain "github.com/stredes/bakend-red-pirvada/internal/domain"
)

// PubSubPedidoEventPublisher publishes pedido lifecycle events to a Pub/Sub topic.
type PubSubPedidoEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPedidoEventPublisher constructs a Pub/Sub backed pedido event publisher.
func NewPubSubPedidoEventPublisher(topic *pubsub.Topic) (*PubSubPedidoEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub pedido publisher: topic is required")
	}
	return &PubSubPedidoEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishPedidoEvent enqueues a pedido event message on the configured topic.
func (p *PubSubPedidoEventPublisher) PublishPedidoEvent(ctx context.Context, event domain.PedidoEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub pedido publisher: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal pedido event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "pedidoId", event.PedidoID)
	setAttr(attrs, "type", event.Type)
	setAttr(attrs, "toStatus", string(event.ToStatus))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish pedido event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
