package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"cisline/internal/domain"
)

func TestDiffOnlyChangedMappedFields(t *testing.T) {
	before := Snapshot{"name": "Patch servers", "description": "all", "status": "OPEN", "owner": "x"}
	after := Snapshot{"name": "Patch servers Q1", "description": " all ", "status": "OPEN", "owner": "y"}
	changes := Diff(KindTask, before, after)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %+v", changes)
	}
	c := changes[0]
	if c.Message != "Task name changed" || c.Importance != domain.ImportanceLow {
		t.Fatalf("unexpected change %+v", c)
	}
	if c.Before != "Patch servers" || c.After != "Patch servers Q1" {
		t.Fatalf("unexpected values %+v", c)
	}
}

func TestDiffOrderFollowsTable(t *testing.T) {
	before := Snapshot{}
	after := Snapshot{"end_at": "2024-02-01", "status": "CLOSED", "name": "n", "start_at": "2024-01-01"}
	changes := Diff(KindTask, before, after)
	want := []string{"name", "status", "start_at", "end_at"}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %+v", len(want), changes)
	}
	for i, f := range want {
		if changes[i].Field != f {
			t.Fatalf("position %d: expected %s, got %s", i, f, changes[i].Field)
		}
	}
	if changes[1].Importance != domain.ImportanceHigh || changes[2].Importance != domain.ImportanceMiddle {
		t.Fatalf("unexpected importances %+v", changes)
	}
}

func TestDiffCorrespondsToChangedMappedSet(t *testing.T) {
	kinds := []Kind{KindOrganization, KindSettings, KindProfile, KindTask, KindArtifact}
	fields := []string{"name", "description", "role", "work_function", "nickname", "status", "start_at", "end_at",
		"expected_evidence", "upload_directory", "download_directory", "artifact_directory", "unknown"}
	for _, kind := range kinds {
		for mask := 0; mask < 1<<4; mask++ {
			before, after := Snapshot{}, Snapshot{}
			want := map[string]bool{}
			for i, f := range fields {
				before[f] = "v"
				after[f] = "v"
				if mask&(1<<(i%4)) != 0 && i%3 == 0 {
					after[f] = "w"
					if Audited(kind, f) {
						want[f] = true
					}
				}
			}
			got := map[string]bool{}
			for _, c := range Diff(kind, before, after) {
				if got[c.Field] {
					t.Fatalf("%s: duplicate change for %s", kind, c.Field)
				}
				got[c.Field] = true
			}
			if len(got) != len(want) {
				t.Fatalf("%s mask %d: expected %v, got %v", kind, mask, want, got)
			}
			for f := range want {
				if !got[f] {
					t.Fatalf("%s mask %d: missing %s", kind, mask, f)
				}
			}
		}
	}
}

func TestArtifactDescriptionNotAudited(t *testing.T) {
	if changes := Diff(KindArtifact, Snapshot{"description": "a"}, Snapshot{"description": "b"}); len(changes) != 0 {
		t.Fatalf("expected no change, got %+v", changes)
	}
}

func TestLifecycleMessages(t *testing.T) {
	c := Lifecycle(OrganizationCreated, "Acme")
	if c.Message != `Organization created: "Acme"` || c.Importance != domain.ImportanceHigh {
		t.Fatalf("unexpected %+v", c)
	}
	c = Lifecycle(ProfileRemoved, "Jane Doe")
	if c.Message != `Profile removed: "Jane Doe"` || c.Importance != domain.ImportanceHigh {
		t.Fatalf("unexpected %+v", c)
	}
	if c := Lifecycle(SettingsRemoved, ""); c.Message != "Settings removed" {
		t.Fatalf("unexpected %+v", c)
	}
}

func TestIntentEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Scope{OrganizationID: Int64(3), ActorID: "alice"}.Intents(at, Lifecycle(TaskCreated, "T"))
	if len(in) != 1 || in[0].ID == "" {
		t.Fatalf("unexpected intents %+v", in)
	}
	e := in[0].Event()
	if e.OrganizationID == nil || *e.OrganizationID != 3 || e.ActorID != "alice" || e.CreatedAt != "2024-03-01T10:00:00Z" {
		t.Fatalf("unexpected event %+v", e)
	}
}

type flakySink struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []domain.Event
	err      error
}

func (s *flakySink) Write(ctx context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	s.events = append(s.events, e)
	return nil
}

func fastOptions(reg prometheus.Registerer) OutboxOptions {
	return OutboxOptions{
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Logger:          zerolog.Nop(),
		Registerer:      reg,
	}
}

func TestOutboxRetriesThenWrites(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := &flakySink{failures: 2}
	o := NewOutbox(sink, fastOptions(reg))
	defer o.Close(context.Background())

	o.Enqueue(Scope{}.Intents(time.Now(), Lifecycle(OrganizationCreated, "Acme"))...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(sink.events) != 1 || sink.calls != 3 {
		t.Fatalf("expected write after two retries, calls=%d events=%d", sink.calls, len(sink.events))
	}
	if got := testutil.ToFloat64(o.metrics.written); got != 1 {
		t.Fatalf("written=%v", got)
	}
	if got := testutil.ToFloat64(o.metrics.retries); got != 2 {
		t.Fatalf("retries=%v", got)
	}
}

func TestOutboxGivesUpSilently(t *testing.T) {
	sink := &flakySink{err: errors.New("disk gone")}
	o := NewOutbox(sink, fastOptions(nil))
	o.Enqueue(Scope{}.Intents(time.Now(), Lifecycle(TaskDeleted, "T"))...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sink.calls)
	}
	if got := testutil.ToFloat64(o.metrics.failed); got != 1 {
		t.Fatalf("failed=%v", got)
	}
}

func TestOutboxPermanentErrorStopsRetry(t *testing.T) {
	sink := &flakySink{err: Permanent(errors.New("bad event"))}
	o := NewOutbox(sink, fastOptions(nil))
	o.Enqueue(Scope{}.Intents(time.Now(), Lifecycle(TaskDeleted, "T"))...)
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sink.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", sink.calls)
	}
}

func TestOutboxDropsAfterClose(t *testing.T) {
	sink := &flakySink{}
	o := NewOutbox(sink, fastOptions(nil))
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	o.Enqueue(Scope{}.Intents(time.Now(), Lifecycle(TaskDeleted, "T"))...)
	if err := o.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sink.calls != 0 {
		t.Fatalf("expected no writes after close")
	}
	if got := testutil.ToFloat64(o.metrics.dropped); got != 1 {
		t.Fatalf("dropped=%v", got)
	}
}

func TestOutboxEnqueueSignalsItsBatch(t *testing.T) {
	sink := &flakySink{failures: 1}
	o := NewOutbox(sink, fastOptions(nil))
	defer o.Close(context.Background())

	done := o.Enqueue(Scope{}.Intents(time.Now(),
		Lifecycle(TaskCreated, "T"), Lifecycle(ArtifactAdded, "scan.pdf"))...)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("batch never settled")
	}
	sink.mu.Lock()
	n := len(sink.events)
	sink.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected both events written before the signal, got %d", n)
	}

	select {
	case <-o.Enqueue():
	default:
		t.Fatalf("an empty batch should be settled already")
	}
}

func TestOutboxDroppedBatchIsSettled(t *testing.T) {
	o := NewOutbox(&flakySink{}, fastOptions(nil))
	if err := o.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-o.Enqueue(Scope{}.Intents(time.Now(), Lifecycle(TaskDeleted, "T"))...):
	default:
		t.Fatalf("a batch dropped on a closed outbox should be settled already")
	}
}
