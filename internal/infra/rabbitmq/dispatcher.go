// Package rabbitmq hands encode jobs to an external provider over AMQP.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const dispatchRoutingKey = "video.encode.dispatch"

// Connect dials RabbitMQ under exponential backoff; broker startup races are
// common in containerized deployments.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	operation := func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("rabbitmq dial failed, retrying", zap.Error(err))
			return nil, err
		}
		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(5))
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	logger.Info("connected to rabbitmq")
	return conn, nil
}

// Dispatcher publishes dispatch messages to the media exchange. The remote
// provider consumes them and reports completion by updating the video record
// itself.
type Dispatcher struct {
	channel  *amqp.Channel
	exchange string
}

func NewDispatcher(conn *amqp.Connection, exchange string) (*Dispatcher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open dispatcher channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Dispatcher{channel: ch, exchange: exchange}, nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg entity.EncodeDispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}
	err = d.channel.PublishWithContext(ctx,
		d.exchange,
		dispatchRoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish dispatch message: %w", err)
	}
	return nil
}

func (d *Dispatcher) Close() error {
	return d.channel.Close()
}
