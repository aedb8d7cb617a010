package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/matheusmosca/pos-transaction-engine/internal/sale"
)

var ErrNoBrokers = errors.New("kafka publisher requires at least one broker")

// DefaultTopics mapeia cada tipo de evento para o tópico padrão
var DefaultTopics = map[string]string{
	sale.EventSaleCommitted: "pos.sale.committed",
	sale.EventSaleCancelled: "pos.sale.cancelled",
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implementa sale.Publisher usando kafka-go
type KafkaPublisher struct {
	writer       messageWriter
	topicByEvent map[string]string
	logger       *zap.Logger
	now          func() time.Time
}

// NewKafkaPublisher cria uma nova instância de KafkaPublisher. Tópicos vazios caem no padrão.
func NewKafkaPublisher(brokers []string, topicByEvent map[string]string, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, topicByEvent, logger), nil
}

func newPublisher(w messageWriter, topicByEvent map[string]string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	topics := make(map[string]string, len(DefaultTopics))
	for event, topic := range DefaultTopics {
		topics[event] = topic
	}
	for event, topic := range topicByEvent {
		if topic != "" {
			topics[event] = topic
		}
	}
	return &KafkaPublisher{writer: w, topicByEvent: topics, logger: logger, now: time.Now}
}

// Publish serializa o evento em JSON e o grava com a chave da venda,
// mantendo commit e cancelamento da mesma venda na mesma partição.
func (p *KafkaPublisher) Publish(ctx context.Context, event sale.Event) error {
	topic, ok := p.topicByEvent[event.Type]
	if !ok {
		return fmt.Errorf("no topic for event type %q", event.Type)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.Key()),
		Value: payload,
		Time:  p.now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}

	p.logger.Debug("📤 Sale event published", zap.String("topic", topic), zap.String("sale_id", event.Key()))
	return nil
}

// Close descarrega as mensagens pendentes e fecha o writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop descarta os eventos; usado quando nenhum broker está configurado
type Noop struct{}

func (Noop) Publish(context.Context, sale.Event) error { return nil }

func (Noop) Close() error { return nil }
