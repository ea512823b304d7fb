package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// Channel es el subconjunto de *amqp.Channel que usa el publisher.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher implementa ports.Notifier publicando cada evento como JSON
// en un exchange topic. Routing key: "fortuna.<event_type>".
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

// NewAMQPPublisher conecta al broker y declara el exchange (topic, durable).
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 60 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("notify.NewAMQPPublisher: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify.NewAMQPPublisher: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("notify.NewAMQPPublisher: declare exchange %q: %w", exchange, err)
	}
	slog.Info("amqp publisher ready", "exchange", exchange)
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// NewAMQPPublisherWithChannel crea un publisher sobre un canal ya abierto (tests).
func NewAMQPPublisherWithChannel(ch Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

// Notify publica los eventos en orden. Se detiene en el primer error.
func (p *AMQPPublisher) Notify(_ context.Context, events []domain.Event) error {
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("notify.AMQPPublisher: marshal %s: %w", ev.Type, err)
		}
		msg := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.OccurredAt,
			Type:         string(ev.Type),
			Body:         body,
		}
		if err := p.ch.Publish(p.exchange, RoutingKey(ev.Type), false, false, msg); err != nil {
			return fmt.Errorf("notify.AMQPPublisher: publish %s: %w", ev.Type, err)
		}
	}
	return nil
}

// RoutingKey es la clave con la que se publica un tipo de evento.
func RoutingKey(t domain.EventType) string { return "fortuna." + string(t) }

// Close cierra canal y conexión.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return fmt.Errorf("notify.AMQPPublisher: close channel: %w", err)
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
