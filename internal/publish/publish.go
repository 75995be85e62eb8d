// Package publish sends detected signals and simulated exits to Kafka so
// downstream consumers can react to a finished run.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"btc-signal-lab/internal/domain"
)

// Event types carried in the message "type" header.
const (
	EventSignal = "signal"
	EventExit   = "exit"
)

// ErrNoBrokers is returned by NewProducer without any broker.
var ErrNoBrokers = errors.New("publish: brokers are required")

// SignalMessage is the JSON payload of a signal event.
type SignalMessage struct {
	SignalID   string  `json:"signal_id"`
	StrategyID string  `json:"strategy_id"`
	Date       string  `json:"date"`
	Price      float64 `json:"price"`
}

// ExitMessage is the JSON payload of an exit event.
type ExitMessage struct {
	ExitID      string  `json:"exit_id"`
	SignalID    string  `json:"signal_id"`
	ExitRuleID  string  `json:"exit_rule_id"`
	SignalDate  string  `json:"signal_date"`
	SignalPrice float64 `json:"signal_price"`
	ExitDate    string  `json:"exit_date"`
	ExitPrice   float64 `json:"exit_price"`
	Reason      string  `json:"reason"`
	Return      float64 `json:"return"`
	HoldDays    int     `json:"hold_days"`
}

// messageWriter is the part of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka writer settings.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// Producer publishes run results to one topic.
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a producer. Messages are keyed by signal_id and
// hashed to partitions, so events of one signal stay ordered.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("publish: topic is required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Gzip,
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, cfg.Topic), nil
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Publish sends every signal followed by every exit in a single write.
// Nothing is sent when both slices are empty.
func (p *Producer) Publish(ctx context.Context, signals []*domain.Signal, exits []*domain.ExitEvent) error {
	msgs, err := p.messages(signals, exits)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d messages to %s: %w", len(msgs), p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) messages(signals []*domain.Signal, exits []*domain.ExitEvent) ([]kafka.Message, error) {
	ts := p.now()
	msgs := make([]kafka.Message, 0, len(signals)+len(exits))

	for _, s := range signals {
		m, err := message(s.SignalID, EventSignal, ts, SignalMessage{
			SignalID:   s.SignalID,
			StrategyID: s.StrategyID,
			Date:       domain.DayKey(s.Date),
			Price:      s.Price,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	for _, e := range exits {
		m, err := message(e.SignalID, EventExit, ts, ExitMessage{
			ExitID:      e.ExitID,
			SignalID:    e.SignalID,
			ExitRuleID:  e.ExitRuleID,
			SignalDate:  domain.DayKey(e.SignalDate),
			SignalPrice: e.SignalPrice,
			ExitDate:    domain.DayKey(e.ExitDate),
			ExitPrice:   e.ExitPrice,
			Reason:      e.Reason.String(),
			Return:      e.Return,
			HoldDays:    e.HoldDays,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	return msgs, nil
}

func message(key, eventType string, ts time.Time, payload any) (kafka.Message, error) {
	v, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   v,
		Time:    ts,
		Headers: []kafka.Header{{Key: "type", Value: []byte(eventType)}},
	}, nil
}
