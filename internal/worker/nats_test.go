package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/QTest-hq/stlc/internal/db"
	stlcnats "github.com/QTest-hq/stlc/internal/nats"
)

// fakeMsg records how a message was settled
type fakeMsg struct {
	jetstream.Msg
	data []byte

	mu      sync.Mutex
	settled string
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) settle(how string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = how
	return nil
}

func (m *fakeMsg) Ack() error  { return m.settle("ack") }
func (m *fakeMsg) Nak() error  { return m.settle("nak") }
func (m *fakeMsg) Term() error { return m.settle("term") }

func (m *fakeMsg) outcome() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

type fakeBatch struct {
	msgs chan jetstream.Msg
}

func (b *fakeBatch) Messages() <-chan jetstream.Msg { return b.msgs }
func (b *fakeBatch) Error() error                   { return nil }

// fakeConsumer hands out queued messages one fetch at a time and returns
// empty batches once drained
type fakeConsumer struct {
	jetstream.Consumer

	mu      sync.Mutex
	queue   []*fakeMsg
	fetches int
}

func (c *fakeConsumer) push(data []byte) *fakeMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := &fakeMsg{data: data}
	c.queue = append(c.queue, m)
	return m
}

func (c *fakeConsumer) Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++

	out := make(chan jetstream.Msg, batch)
	for i := 0; i < batch && len(c.queue) > 0; i++ {
		out <- c.queue[0]
		c.queue = c.queue[1:]
	}
	close(out)
	return &fakeBatch{msgs: out}, nil
}

func selectionMsg(t *testing.T, id uuid.UUID) []byte {
	t.Helper()
	data, err := stlcnats.SelectionMessage{RunID: id, QueuedAt: time.Now()}.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	return data
}

func TestBaseWorker_ProcessFromNATS_AcksCompletedRun(t *testing.T) {
	store := newMemStore()
	id := store.add("", `[]`)
	consumer := &fakeConsumer{}
	msg := consumer.push(selectionMsg(t, id))

	base := NewBaseWorker(BaseWorkerConfig{Store: store, Consumer: consumer, Handler: echoHandler})
	if err := base.processFromNATS(context.Background()); err != nil {
		t.Fatalf("processFromNATS() error: %v", err)
	}

	if store.get(id).Status != db.RunCompleted {
		t.Errorf("Status = %s, want completed", store.get(id).Status)
	}
	if msg.outcome() != "ack" {
		t.Errorf("message settled with %q, want ack", msg.outcome())
	}
}

func TestBaseWorker_ProcessFromNATS_AcksFailedRun(t *testing.T) {
	store := newMemStore()
	id := store.add("", `[]`)
	consumer := &fakeConsumer{}
	msg := consumer.push(selectionMsg(t, id))

	base := NewBaseWorker(BaseWorkerConfig{
		Store:    store,
		Consumer: consumer,
		Handler: func(ctx context.Context, run *db.SelectionRun) (json.RawMessage, error) {
			return nil, errors.New("bad input")
		},
	})
	if err := base.processFromNATS(context.Background()); err != nil {
		t.Fatalf("processFromNATS() error: %v", err)
	}

	if store.get(id).Status != db.RunFailed {
		t.Errorf("Status = %s, want failed", store.get(id).Status)
	}
	if msg.outcome() != "ack" {
		t.Errorf("message settled with %q, want ack", msg.outcome())
	}
}

func TestBaseWorker_ProcessFromNATS_NaksOnClaimError(t *testing.T) {
	store := newMemStore()
	id := store.add("", `[]`)
	store.setClaimErr(errors.New("connection reset"))
	consumer := &fakeConsumer{}
	msg := consumer.push(selectionMsg(t, id))

	base := NewBaseWorker(BaseWorkerConfig{Store: store, Consumer: consumer, Handler: echoHandler})
	if err := base.processFromNATS(context.Background()); err != nil {
		t.Fatalf("processFromNATS() error: %v", err)
	}

	if msg.outcome() != "nak" {
		t.Errorf("message settled with %q, want nak", msg.outcome())
	}
	if store.get(id).Status != db.RunPending {
		t.Errorf("Status = %s, want pending", store.get(id).Status)
	}
}

func TestBaseWorker_ProcessFromNATS_NaksAndReleasesOnStoreError(t *testing.T) {
	store := newMemStore()
	id := store.add("", `[]`)
	store.updateErr = errors.New("disk full")
	consumer := &fakeConsumer{}
	msg := consumer.push(selectionMsg(t, id))

	base := NewBaseWorker(BaseWorkerConfig{Store: store, Consumer: consumer, Handler: echoHandler})
	if err := base.processFromNATS(context.Background()); err != nil {
		t.Fatalf("processFromNATS() error: %v", err)
	}

	if msg.outcome() != "nak" {
		t.Errorf("message settled with %q, want nak", msg.outcome())
	}
	if store.get(id).Status != db.RunPending {
		t.Errorf("Status = %s, want pending after release", store.get(id).Status)
	}
}

func TestBaseWorker_ProcessFromNATS_TermsUndecodable(t *testing.T) {
	consumer := &fakeConsumer{}
	msg := consumer.push([]byte("not a run"))

	base := NewBaseWorker(BaseWorkerConfig{Store: newMemStore(), Consumer: consumer, Handler: echoHandler})
	if err := base.processFromNATS(context.Background()); err != nil {
		t.Fatalf("processFromNATS() error: %v", err)
	}
	if msg.outcome() != "term" {
		t.Errorf("message settled with %q, want term", msg.outcome())
	}
}

func TestBaseWorker_ProcessFromNATS_AcksRunClaimedElsewhere(t *testing.T) {
	store := newMemStore()
	id := store.add("", `[]`)
	_ = store.ClaimSelectionRun(context.Background(), id)
	consumer := &fakeConsumer{}
	msg := consumer.push(selectionMsg(t, id))

	base := NewBaseWorker(BaseWorkerConfig{Store: store, Consumer: consumer, Handler: echoHandler})
	if err := base.processFromNATS(context.Background()); err != nil {
		t.Fatalf("processFromNATS() error: %v", err)
	}
	if msg.outcome() != "ack" {
		t.Errorf("message settled with %q, want ack", msg.outcome())
	}
}

func TestBaseWorker_Run_NATSPicksUpUnpublishedRun(t *testing.T) {
	store := newMemStore()
	id := store.add("", `[]`)

	// nothing was ever published for the run
	consumer := &fakeConsumer{}
	base := NewBaseWorker(BaseWorkerConfig{Store: store, Consumer: consumer, Handler: echoHandler})
	base.SetPollPeriod(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- base.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for store.get(id).Status != db.RunCompleted && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if store.get(id).Status != db.RunCompleted {
		t.Errorf("Status = %s, want completed", store.get(id).Status)
	}
}
