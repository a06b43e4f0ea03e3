package nats

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

func TestSelectionMessage_RoundTrip(t *testing.T) {
	id := uuid.New()
	queued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	data, err := SelectionMessage{RunID: id, QueuedAt: queued}.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	msg, err := DecodeSelectionMessage(data)
	if err != nil {
		t.Fatalf("DecodeSelectionMessage() error: %v", err)
	}
	if msg.RunID != id {
		t.Errorf("RunID = %s, want %s", msg.RunID, id)
	}
	if !msg.QueuedAt.Equal(queued) {
		t.Errorf("QueuedAt = %v, want %v", msg.QueuedAt, queued)
	}
}

func TestSelectionMessage_EncodeNilID(t *testing.T) {
	if _, err := (SelectionMessage{}).Encode(); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Encode() error = %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeSelectionMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "run 42"},
		{"missing id", `{"queued_at":"2024-05-01T12:00:00Z"}`},
		{"bad id", `{"run_id":"nope"}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSelectionMessage([]byte(tt.data))
			if !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestJobStreamConfig(t *testing.T) {
	cfg := JobStreamConfig()

	if cfg.Name != StreamJobs {
		t.Errorf("Name = %s, want %s", cfg.Name, StreamJobs)
	}
	if len(cfg.Subjects) != 1 || cfg.Subjects[0] != SubjectJobsAll {
		t.Errorf("Subjects = %v, want [%s]", cfg.Subjects, SubjectJobsAll)
	}
	if cfg.Retention != jetstream.WorkQueuePolicy {
		t.Errorf("Retention = %v, want work queue", cfg.Retention)
	}
	if cfg.Duplicates == 0 {
		t.Error("Duplicates window should be set for run ID deduplication")
	}
}

func TestSelectionConsumerConfig(t *testing.T) {
	cfg := SelectionConsumerConfig()

	if cfg.Durable != ConsumerSelection {
		t.Errorf("Durable = %s, want %s", cfg.Durable, ConsumerSelection)
	}
	if cfg.FilterSubject != SubjectSelection {
		t.Errorf("FilterSubject = %s, want %s", cfg.FilterSubject, SubjectSelection)
	}
	if cfg.AckPolicy != jetstream.AckExplicitPolicy {
		t.Errorf("AckPolicy = %v, want explicit", cfg.AckPolicy)
	}
}

func TestSubjectWithinStream(t *testing.T) {
	if !strings.HasPrefix(SubjectSelection, strings.TrimSuffix(SubjectJobsAll, ">")) {
		t.Errorf("%s is not covered by %s", SubjectSelection, SubjectJobsAll)
	}
}
