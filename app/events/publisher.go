// Package events publishes upload session transitions to a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, ev models.SessionEvent) error
	Close() error
}

// New picks the backend named in cfg. An empty backend yields a Noop publisher.
func New(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "":
		return Noop{}, nil
	case "sqs":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("events: sqs backend needs EVENTS_QUEUE_URL")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		logger.Info("publishing session events to SQS", "queue_url", cfg.QueueURL)
		return NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.QueueURL), nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("events: kafka backend needs KAFKA_BROKERS")
		}
		logger.Info("publishing session events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return NewKafkaPublisher(&kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.KafkaTopic,
			Balancer: &kafka.LeastBytes{},
		}), nil
	default:
		return nil, fmt.Errorf("events: unknown backend %q", cfg.Backend)
	}
}

type Noop struct{}

func (Noop) Publish(context.Context, models.SessionEvent) error { return nil }
func (Noop) Close() error                                       { return nil }

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, ev models.SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Status)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send for session %s: %w", ev.SessionID, err)
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }

// KafkaWriter is the subset of *kafka.Writer used here.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer KafkaWriter
}

func NewKafkaPublisher(w KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish keys messages by session so one session's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, ev models.SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: body,
	}); err != nil {
		return fmt.Errorf("kafka write for session %s: %w", ev.SessionID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
