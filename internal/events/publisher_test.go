package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"heirloom/internal/domain"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishEncodesEvent(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, topic: "restoration-jobs", timeout: time.Second}

	secs := 1.5
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), domain.JobEvent{
		JobID:          "job-1",
		Status:         domain.JobStatusCompleted,
		ProcessingTime: &secs,
		At:             at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "job-1", string(msg.Key))
	require.Equal(t, at, msg.Time)
	require.Equal(t, "completed", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "job-1", decoded["job_id"])
	require.Equal(t, "completed", decoded["status"])
	require.Equal(t, 1.5, decoded["processing_time"])
	require.NotContains(t, decoded, "error_message")
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := &KafkaPublisher{writer: w, topic: "t", timeout: time.Second}
	err := p.Publish(context.Background(), domain.JobEvent{JobID: "x", Status: domain.JobStatusFailed})
	require.ErrorContains(t, err, "broker down")
}

func TestPublishIgnoresCallerCancellation(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{writer: w, topic: "t", timeout: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Publish(ctx, domain.JobEvent{JobID: "x", Status: domain.JobStatusFailed}))
	require.Len(t, w.msgs, 1)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "t")
	require.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, " ")
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "restoration-jobs")
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestNoop(t *testing.T) {
	require.NoError(t, Noop{}.Publish(context.Background(), domain.JobEvent{}))
}
