package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

type fakeAcknowledger struct {
	acked  []uint64
	nacked []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _, _ bool) error {
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, _ bool) error {
	return nil
}

func newTestConsumer(t *testing.T) *Consumer {
	t.Helper()

	logger := zerolog.Nop()

	return &Consumer{queue: "reviews.raw", loader: newTestLoader(t), logger: &logger}
}

func newDelivery(t *testing.T, ack amqp.Acknowledger, tag uint64, env Envelope) amqp.Delivery {
	t.Helper()

	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func rawRow(id, submission, member string) map[string]string {
	return map[string]string{
		"#":            id,
		"Submission #": submission,
		"Member #":     member,
		"Score":        "6",
		"Timestamp":    "2024-05-01T09:30",
	}
}

func TestConsumer_DrainAssemblesStream(t *testing.T) {
	c := newTestConsumer(t)
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- newDelivery(t, ack, 1, Envelope{
		Header: Header{Weight: 2, TotalWeight: -1},
		Rows:   []map[string]string{rawRow("1", "100", "10"), rawRow("2", "100", "11")},
	})
	deliveries <- newDelivery(t, ack, 2, Envelope{
		Header: Header{Weight: 1, TotalWeight: -1},
		Rows:   []map[string]string{rawRow("3", "200", "10")},
	})
	deliveries <- newDelivery(t, ack, 3, Envelope{Header: Header{Weight: 0, TotalWeight: 3}})
	close(deliveries)

	table, err := c.drain(context.Background(), deliveries)
	if err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	if len(table.Records) != 3 {
		t.Fatalf("Records len = %d, want 3", len(table.Records))
	}

	// Rows are numbered across the whole stream.
	for i, rec := range table.Records {
		if rec.Row != i+1 {
			t.Errorf("Records[%d].Row = %d, want %d", i, rec.Row, i+1)
		}
	}

	if got, ok := table.Records[2].Field(domain.FieldReviewID); !ok || got != "3" {
		t.Errorf("Records[2] review_id = %q/%v, want 3", got, ok)
	}

	if len(ack.acked) != 3 || len(ack.nacked) != 0 {
		t.Errorf("acked %d nacked %d, want 3/0", len(ack.acked), len(ack.nacked))
	}
}

func TestConsumer_DrainMarkerCountMismatch(t *testing.T) {
	c := newTestConsumer(t)
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- newDelivery(t, ack, 1, Envelope{
		Header: Header{Weight: 1, TotalWeight: -1},
		Rows:   []map[string]string{rawRow("1", "100", "10")},
	})
	deliveries <- newDelivery(t, ack, 2, Envelope{Header: Header{Weight: 0, TotalWeight: 5}})

	_, err := c.drain(context.Background(), deliveries)
	if err == nil || !strings.Contains(err.Error(), "marker says") {
		t.Errorf("drain() error = %v, want marker mismatch", err)
	}
}

func TestConsumer_DrainClosedBeforeMarker(t *testing.T) {
	c := newTestConsumer(t)
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- newDelivery(t, ack, 1, Envelope{
		Header: Header{Weight: 1, TotalWeight: -1},
		Rows:   []map[string]string{rawRow("1", "100", "10")},
	})
	close(deliveries)

	_, err := c.drain(context.Background(), deliveries)
	if !errors.Is(err, errs.ErrEndOfStream) {
		t.Errorf("drain() error = %v, want ErrEndOfStream", err)
	}
}

func TestConsumer_DrainSkipsUndecodable(t *testing.T) {
	c := newTestConsumer(t)
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("not json")}
	deliveries <- newDelivery(t, ack, 2, Envelope{
		Header: Header{Weight: 1, TotalWeight: -1},
		Rows:   []map[string]string{rawRow("1", "100", "10")},
	})
	deliveries <- newDelivery(t, ack, 3, Envelope{Header: Header{Weight: 0, TotalWeight: 1}})

	table, err := c.drain(context.Background(), deliveries)
	if err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	if len(table.Records) != 1 {
		t.Errorf("Records len = %d, want 1", len(table.Records))
	}

	if len(ack.nacked) != 1 || ack.nacked[0] != 1 {
		t.Errorf("nacked = %v, want the undecodable delivery", ack.nacked)
	}

	if len(ack.acked) != 2 {
		t.Errorf("acked %d deliveries, want 2", len(ack.acked))
	}
}

func TestConsumer_DrainEmptyStream(t *testing.T) {
	c := newTestConsumer(t)
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- newDelivery(t, ack, 1, Envelope{Header: Header{Weight: 0, TotalWeight: 0}})

	_, err := c.drain(context.Background(), deliveries)
	if !errors.Is(err, errs.ErrNoRecords) {
		t.Errorf("drain() error = %v, want ErrNoRecords", err)
	}
}

func TestConsumer_DrainContextCanceled(t *testing.T) {
	c := newTestConsumer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.drain(ctx, make(chan amqp.Delivery))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("drain() error = %v, want context.Canceled", err)
	}
}

func TestEnvelope_EOF(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want bool
	}{
		{name: "marker", env: Envelope{Header: Header{Weight: 0, TotalWeight: 3}}, want: true},
		{name: "empty stream marker", env: Envelope{Header: Header{Weight: 0, TotalWeight: 0}}, want: true},
		{name: "data message", env: Envelope{Header: Header{Weight: 2, TotalWeight: -1}}, want: false},
		{name: "zero weight data", env: Envelope{Header: Header{Weight: 0, TotalWeight: -1}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.EOF(); got != tt.want {
				t.Errorf("EOF() = %v, want %v", got, tt.want)
			}
		})
	}
}
