package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"loanflow/models"
	"loanflow/utils"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// DecisionEvent is emitted after a loan decision is committed
type DecisionEvent struct {
	EventID      string            `json:"event_id"`
	LoanID       uint              `json:"loan_id"`
	ApplicantID  uint              `json:"applicant_id"`
	Status       models.LoanStatus `json:"status"`
	Amount       float64           `json:"amount"`
	TenureMonths int               `json:"tenure_months"`
	InterestRate float64           `json:"interest_rate"`
	EMI          float64           `json:"emi"`
	Reason       string            `json:"reason,omitempty"`
	Reevaluation bool              `json:"reevaluation"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// NewDecisionEvent describes the current state of loan
func NewDecisionEvent(loan *models.LoanApplication, reevaluation bool, at time.Time) DecisionEvent {
	return DecisionEvent{
		EventID:      uuid.NewString(),
		LoanID:       loan.ID,
		ApplicantID:  loan.ApplicantID,
		Status:       loan.Status,
		Amount:       loan.Amount,
		TenureMonths: loan.TenureMonths,
		InterestRate: loan.InterestRate,
		EMI:          loan.EMI,
		Reason:       loan.DecisionReason,
		Reevaluation: reevaluation,
		OccurredAt:   at,
	}
}

// LogPublisher writes events to the application log
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, evt DecisionEvent) error {
	utils.GetLogger().WithFields(logrus.Fields{
		"event":        "loan_decision",
		"loan_id":      evt.LoanID,
		"applicant_id": evt.ApplicantID,
		"status":       evt.Status,
		"reevaluation": evt.Reevaluation,
	}).Info("loan decision recorded")
	return nil
}

func (LogPublisher) Close() error { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by loan id
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for topic
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireAll,
			MaxAttempts:            1,
		},
		timeout: timeout,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt DecisionEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	return callCollaborator(ctx, "kafka", p.timeout, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(strconv.FormatUint(uint64(evt.LoanID), 10)),
			Value: data,
		})
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// PubSubPublisher publishes events to a Pub/Sub topic
type PubSubPublisher struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	timeout time.Duration
}

// NewPubSubPublisher connects with application default credentials
func NewPubSubPublisher(ctx context.Context, projectID, topicID string, timeout time.Duration) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubPublisher{client: client, topic: client.Topic(topicID), timeout: timeout}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, evt DecisionEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal decision event: %w", err)
	}
	return callCollaborator(ctx, "pubsub", p.timeout, func(ctx context.Context) error {
		result := p.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"status":  string(evt.Status),
				"loan_id": strconv.FormatUint(uint64(evt.LoanID), 10),
			},
		})
		_, err := result.Get(ctx)
		return err
	})
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
