package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	StreamJobs        = "STLC_JOBS"
	SubjectJobsAll    = "jobs.>"
	SubjectSelection  = "jobs.selection"
	ConsumerSelection = "selection-worker"
)

// ErrInvalidMessage is returned for payloads that do not name a run
var ErrInvalidMessage = errors.New("invalid selection message")

// SelectionMessage asks a worker to execute a stored selection run
type SelectionMessage struct {
	RunID    uuid.UUID `json:"run_id"`
	QueuedAt time.Time `json:"queued_at"`
}

// Encode serializes the message
func (m SelectionMessage) Encode() ([]byte, error) {
	if m.RunID == uuid.Nil {
		return nil, ErrInvalidMessage
	}
	return json.Marshal(m)
}

// DecodeSelectionMessage parses a message published by PublishSelection
func DecodeSelectionMessage(data []byte) (SelectionMessage, error) {
	var m SelectionMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.RunID == uuid.Nil {
		return m, fmt.Errorf("%w: missing run_id", ErrInvalidMessage)
	}
	return m, nil
}

// JobStreamConfig is the work queue holding queued jobs. A message is
// removed once acked; old runs beyond the limits are discarded.
func JobStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamJobs,
		Description: "stlc job queue",
		Subjects:    []string{SubjectJobsAll},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		Discard:     jetstream.DiscardOld,
		MaxMsgs:     10000,
		MaxBytes:    64 << 20,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
		Duplicates:  2 * time.Minute,
	}
}

// SelectionConsumerConfig is the durable pull consumer shared by selection
// workers. A pass makes O(n^2) oracle calls, hence the long ack wait.
func SelectionConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          ConsumerSelection,
		Durable:       ConsumerSelection,
		FilterSubject: SubjectSelection,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Minute,
		MaxDeliver:    3,
		MaxAckPending: 20,
	}
}

// SetupStreams creates or updates the job stream and the selection consumer
func (c *Client) SetupStreams(ctx context.Context) (jetstream.Consumer, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}

	streamCfg := JobStreamConfig()
	if _, err := js.CreateOrUpdateStream(ctx, streamCfg); err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", streamCfg.Name, err)
	}

	consumerCfg := SelectionConsumerConfig()
	consumer, err := js.CreateOrUpdateConsumer(ctx, streamCfg.Name, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", consumerCfg.Name, err)
	}

	log.Debug().
		Str("stream", streamCfg.Name).
		Str("consumer", consumerCfg.Name).
		Str("filter", consumerCfg.FilterSubject).
		Msg("selection queue ready")
	return consumer, nil
}

// PublishSelection queues a run for the selection worker. The run ID is the
// message ID, so publishing the same run twice within the duplicate window
// delivers it once.
func (c *Client) PublishSelection(ctx context.Context, runID uuid.UUID) error {
	data, err := SelectionMessage{RunID: runID, QueuedAt: time.Now().UTC()}.Encode()
	if err != nil {
		return err
	}

	js, err := c.jetStream()
	if err != nil {
		return err
	}

	ack, err := js.Publish(ctx, SubjectSelection, data, jetstream.WithMsgID(runID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish run %s: %w", runID, err)
	}
	if ack.Duplicate {
		log.Debug().Str("run_id", runID.String()).Msg("run already queued")
	}
	return nil
}
