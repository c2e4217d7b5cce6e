// Package notification hands salary events to the messaging layer that
// e-mails or texts employees. Delivery is fire-and-forget.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/SialouWebServices/Saas/internal/config"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventSalaryPaid      EventType = "payroll.salary_paid"
	EventPaymentFailed   EventType = "payroll.payment_failed"
	EventFilingSubmitted EventType = "payroll.cnps_filing_submitted"
)

type Recipient struct {
	EmployeeID  string  `json:"employee_id"`
	Name        string  `json:"name"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Email       *string `json:"email,omitempty"`
}

type Event struct {
	Type       EventType         `json:"type"`
	CompanyID  string            `json:"company_id"`
	Recipient  Recipient         `json:"recipient"`
	Payload    map[string]string `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type Publisher interface {
	Notify(ctx context.Context, event Event) error
}

type kafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaWriter builds an async writer: WriteMessages returns once the
// message is queued, and delivery errors surface in the completion log.
func NewKafkaWriter(cfg config.KafkaConfig, logger *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("notification delivery failed", "count", len(messages), "error", err)
			}
		},
	}
}

func NewKafkaPublisher(writer *kafka.Writer) Publisher {
	return &kafkaPublisher{writer: writer}
}

func (p *kafkaPublisher) Notify(ctx context.Context, event Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func encodeMessage(event Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.CompanyID + ":" + event.Recipient.EmployeeID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}, nil
}

type logPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher is used when no brokers are configured.
func NewLogPublisher(logger *slog.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Notify(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "notification",
		slog.String("type", string(event.Type)),
		slog.String("company_id", event.CompanyID),
		slog.String("employee_id", event.Recipient.EmployeeID),
		slog.Any("payload", event.Payload),
	)
	return nil
}
