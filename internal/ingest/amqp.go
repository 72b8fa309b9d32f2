package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// Header carries batch accounting on the queue: data messages set Weight to
// their row count and TotalWeight to -1; the end-of-stream marker has
// Weight 0 and TotalWeight set to the full stream row count.
type Header struct {
	Weight      int `json:"weight"`
	TotalWeight int `json:"total_weight"`
}

// Envelope is the wire format for raw review rows. Each row is a raw
// header → value map; the consumer applies the column mapping on receipt.
type Envelope struct {
	Header Header              `json:"header"`
	Rows   []map[string]string `json:"rows,omitempty"`
}

// EOF reports whether the envelope is the end-of-stream marker.
func (e Envelope) EOF() bool {
	return e.Header.Weight == 0 && e.Header.TotalWeight >= 0
}

// Consumer drains raw review rows from a queue until the end-of-stream
// marker arrives, then hands over the complete table. Bias needs the whole
// table grouped by submission, so nothing downstream runs until the marker.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	loader *Loader
	logger *zerolog.Logger
}

// NewConsumer dials the broker, declares the queue and applies the prefetch
// window.
func NewConsumer(url, queue string, prefetch int, loader *Loader, logger *zerolog.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err = ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("set qos: %w", err)
	}

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &Consumer{conn: conn, ch: ch, queue: queue, loader: loader, logger: logger}, nil
}

// Consume blocks until a complete table has been assembled or the context
// ends.
func (c *Consumer) Consume(ctx context.Context) (*Table, error) {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	return c.drain(ctx, deliveries)
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) (*Table, error) {
	var records []domain.RawRecord

	row := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil, fmt.Errorf("queue %s closed before marker: %w", c.queue, errs.ErrEndOfStream)
			}

			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				c.logger.Warn().Err(err).Msg("dropping undecodable message")

				if nerr := d.Nack(false, false); nerr != nil {
					return nil, fmt.Errorf("nack: %w", nerr)
				}

				continue
			}

			if env.EOF() {
				if env.Header.TotalWeight != len(records) {
					return nil, fmt.Errorf("queue %s: marker says %d rows, received %d", c.queue, env.Header.TotalWeight, len(records))
				}

				if err := d.Ack(false); err != nil {
					return nil, fmt.Errorf("ack marker: %w", err)
				}

				if len(records) == 0 {
					return nil, errs.ErrNoRecords
				}

				c.logger.Info().Int("rows", len(records)).Str("queue", c.queue).Msg("stream complete")

				return &Table{Records: records}, nil
			}

			for _, raw := range env.Rows {
				row++
				records = append(records, c.loader.RecordFromMap(row, raw))
			}

			if err := d.Ack(false); err != nil {
				return nil, fmt.Errorf("ack: %w", err)
			}
		}
	}
}

// Close shuts the channel and the connection down.
func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}

	return nil
}
