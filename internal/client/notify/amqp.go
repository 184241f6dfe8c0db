package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the notifier uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes events as persistent JSON messages with routing key
// "fieldseal.<kind>". Publish failures are logged and dropped; the local
// store remains the source of truth for counts.
type AMQP struct {
	pub      Publisher
	exchange string
	deviceID string
	timeout  time.Duration
	log      logging.Logger
}

func NewAMQP(pub Publisher, exchange, deviceID string, log logging.Logger) *AMQP {
	return &AMQP{pub: pub, exchange: exchange, deviceID: deviceID, timeout: 5 * time.Second, log: log.With("module", "notify.amqp")}
}

func (n *AMQP) Notify(ctx context.Context, e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		n.log.Error(ctx, "encode event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	err = n.pub.PublishWithContext(ctx, n.exchange, "fieldseal."+string(e.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		AppId:        n.deviceID,
		Body:         body,
	})
	if err != nil {
		n.log.Warn(ctx, "publish event", "kind", e.Kind, "error", err)
	}
}

// DialAMQP connects, opens a channel and declares a durable topic exchange.
// The returned close function releases both.
func DialAMQP(url, exchange string) (*amqp.Channel, func() error, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: 10 * time.Second, Locale: "en_US"})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return ch, func() error {
		ch.Close()
		return conn.Close()
	}, nil
}
