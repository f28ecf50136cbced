package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/draiimon/PanicSense-Final-sub000/app/config"
	"github.com/draiimon/PanicSense-Final-sub000/app/logging"
	"github.com/draiimon/PanicSense-Final-sub000/app/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, f.err
}

type fakeKafka struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.closed = true
	return nil
}

var sampleEvent = models.SessionEvent{
	SessionID: "s-42",
	Status:    models.SessionCompleted,
	Message:   "Analysis complete",
	Processed: 120,
	Total:     120,
	At:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
}

func TestSQSPublisherSendsEventJSON(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSPublisher(client, "https://sqs.ap-southeast-1.amazonaws.com/123/sessions")

	require.NoError(t, p.Publish(context.Background(), sampleEvent))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	require.Equal(t, "https://sqs.ap-southeast-1.amazonaws.com/123/sessions", aws.ToString(in.QueueUrl))
	require.Equal(t, "completed", aws.ToString(in.MessageAttributes["status"].StringValue))

	var got models.SessionEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &got))
	require.Equal(t, sampleEvent, got)
}

func TestSQSPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("throttled")
	p := NewSQSPublisher(&fakeSQS{err: boom}, "q")
	err := p.Publish(context.Background(), sampleEvent)
	require.ErrorIs(t, err, boom)
}

func TestKafkaPublisherKeysBySession(t *testing.T) {
	w := &fakeKafka{}
	p := NewKafkaPublisher(w)
	require.NoError(t, p.Publish(context.Background(), sampleEvent))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "s-42", string(w.msgs[0].Key))
	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()
	log := logging.Discard()

	p, err := New(ctx, config.EventsConfig{}, log)
	require.NoError(t, err)
	require.IsType(t, Noop{}, p)

	p, err = New(ctx, config.EventsConfig{Backend: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "upload.sessions"}, log)
	require.NoError(t, err)
	require.IsType(t, &KafkaPublisher{}, p)
	require.NoError(t, p.Close())

	_, err = New(ctx, config.EventsConfig{Backend: "sqs"}, log)
	require.Error(t, err)
	_, err = New(ctx, config.EventsConfig{Backend: "rabbit"}, log)
	require.Error(t, err)
}
