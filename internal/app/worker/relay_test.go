package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"runabout/pkg/config"
	"runabout/pkg/ingest"
	"runabout/pkg/log"
	"runabout/pkg/scenario"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []*ingest.OutboxEntry
	delivered []string
	failed    map[string]string
	claimErr  error
}

func newFakeOutbox(entries ...*ingest.OutboxEntry) *fakeOutbox {
	return &fakeOutbox{pending: entries, failed: map[string]string{}}
}

func (o *fakeOutbox) Claim(ctx context.Context, relayID string) (*ingest.OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.claimErr != nil {
		return nil, o.claimErr
	}
	if len(o.pending) == 0 {
		return nil, nil
	}
	e := o.pending[0]
	o.pending = o.pending[1:]
	return e, nil
}

func (o *fakeOutbox) MarkDelivered(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, id)
	return nil
}

func (o *fakeOutbox) MarkFailed(ctx context.Context, id string, errMsg string, requeue bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if requeue {
		o.pending = append(o.pending, &ingest.OutboxEntry{ID: id, Project: "p", Payload: validPayload()})
		return nil
	}
	o.failed[id] = errMsg
	return nil
}

func (o *fakeOutbox) counts() (delivered, failed, pending int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.delivered), len(o.failed), len(o.pending)
}

func validPayload() []byte {
	s := scenario.New(nil, "evt", nil, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	d, err := ingest.NewDelivery("p", s)
	if err != nil {
		panic(err)
	}
	return d.Payload
}

func entry(id string) *ingest.OutboxEntry {
	return &ingest.OutboxEntry{ID: id, Project: "p", Payload: validPayload(), CreatedAt: time.Now()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRelay_ForwardsPending(t *testing.T) {
	outbox := newFakeOutbox(entry("a"), entry("b"), entry("c"))
	target := ingest.NewMemorySink()
	r := NewRelay("relay-test", outbox, target, 5*time.Millisecond, 2, log.Discard())
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, func() bool {
		d, _, _ := outbox.counts()
		return d == 3
	})
	if target.Len() != 3 {
		t.Fatalf("expected 3 deliveries, got %d", target.Len())
	}
	ids := map[string]bool{}
	for _, d := range target.Deliveries() {
		ids[d.ID] = true
		if d.Project != "p" {
			t.Errorf("unexpected project %q", d.Project)
		}
	}
	for _, id := range []string{"a", "b", "c"} {
		if !ids[id] {
			t.Errorf("delivery id %q missing; outbox id must be kept as idempotency key", id)
		}
	}
}

func TestRelay_MalformedIsNotRequeued(t *testing.T) {
	outbox := newFakeOutbox(&ingest.OutboxEntry{ID: "bad", Project: "p", Payload: []byte("{")})
	target := ingest.NewMemorySink()
	r := NewRelay("relay-test", outbox, target, 5*time.Millisecond, 1, log.Discard())
	r.Start(context.Background())
	defer r.Stop()

	waitFor(t, func() bool {
		_, f, _ := outbox.counts()
		return f == 1
	})
	if target.Len() != 0 {
		t.Fatalf("malformed payload must not be forwarded")
	}
}

func TestRelay_RequeuesUntilTargetRecovers(t *testing.T) {
	outbox := newFakeOutbox(entry("x"))
	target := ingest.NewMemorySink()
	target.FailWith(errors.New("ingest unavailable"))
	r := NewRelay("relay-test", outbox, target, 5*time.Millisecond, 1, log.Discard())
	r.Start(context.Background())
	defer r.Stop()

	time.Sleep(30 * time.Millisecond)
	if d, f, _ := outbox.counts(); d != 0 || f != 0 {
		t.Fatalf("expected entry to stay pending, delivered=%d failed=%d", d, f)
	}
	target.FailWith(nil)
	waitFor(t, func() bool {
		d, _, _ := outbox.counts()
		return d == 1
	})
}

func TestRelay_ClaimErrorKeepsPolling(t *testing.T) {
	outbox := newFakeOutbox(entry("late"))
	outbox.claimErr = errors.New("connection reset")
	target := ingest.NewMemorySink()
	r := NewRelay("relay-test", outbox, target, 5*time.Millisecond, 1, log.Discard())
	r.Start(context.Background())
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	outbox.mu.Lock()
	outbox.claimErr = nil
	outbox.mu.Unlock()
	waitFor(t, func() bool { return target.Len() == 1 })
}

func TestRelay_StopIsIdempotent(t *testing.T) {
	r := NewRelay("relay-test", newFakeOutbox(), ingest.NewMemorySink(), time.Hour, 0, nil)
	r.Start(context.Background())

	done := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop blocked while relay was idle")
	}
}

func TestNewApp_RequiresPostgresOutbox(t *testing.T) {
	if _, err := NewApp(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	cfg := &config.Config{Project: "p", Ingest: config.IngestConfig{Type: "memory"}}
	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error when ingest is not postgres")
	}
	cfg.Ingest = config.IngestConfig{Type: "postgres", DSN: "postgres://localhost/none"}
	cfg.Relay.Target = config.IngestConfig{Type: "memory"}
	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error for memory relay target")
	}
}
