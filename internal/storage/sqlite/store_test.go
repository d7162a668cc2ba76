package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/karenlarocque/feature-forgetting/internal/core/domain"
	"github.com/karenlarocque/feature-forgetting/internal/core/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func encodingLog(id string, at time.Time) *domain.Log {
	cb := 2
	log := domain.NewLog(domain.Metadata{
		SessionID:      id,
		Variant:        "encoding",
		ParticipantID:  "worker-1",
		KeyBindings:    domain.KeyBinding{"p": "smaller", "q": "bigger"},
		Counterbalance: &cb,
		DelayGroup:     "short",
		TrialOrder:     []string{"stim/bed/e1_s1.jpg", "stim/kite/e2_s2.jpg"},
		NTrials:        2,
		StartedAt:      at.Add(-time.Minute),
	})
	acc := 1
	log.Append(domain.Result{Trial: 1, Stimulus: "stim/bed/e1_s1.jpg", RT: 512, Response: "q", Category: "bigger", Accuracy: &acc})
	log.Append(domain.Result{Trial: 2, Stimulus: "stim/kite/e2_s2.jpg", RT: domain.NoReactionTime, Response: domain.NoResponse})
	if err := log.Finalize(domain.MetadataPatch{Demographics: &domain.Demographics{Age: "31", Gender: "f"}}); err != nil {
		panic(err)
	}
	log.Freeze(at)
	return log
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 14, 0, 0, 0, time.UTC)

	if err := store.SaveLog(ctx, encodingLog("s1", at)); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}

	got, err := store.GetLog(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLog() error = %v", err)
	}

	if got.Metadata.Variant != "encoding" {
		t.Errorf("Variant = %q, want encoding", got.Metadata.Variant)
	}
	if got.Metadata.Counterbalance == nil || *got.Metadata.Counterbalance != 2 {
		t.Errorf("Counterbalance = %v, want 2", got.Metadata.Counterbalance)
	}
	if got.Metadata.Demographics == nil || got.Metadata.Demographics.Age != "31" {
		t.Errorf("Demographics = %+v, want age 31", got.Metadata.Demographics)
	}
	if got.Metadata.SubmittedAt == nil || !got.Metadata.SubmittedAt.Equal(at) {
		t.Errorf("SubmittedAt = %v, want %v", got.Metadata.SubmittedAt, at)
	}
	if !got.Frozen() {
		t.Error("stored log should be frozen")
	}

	if got.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", got.Len())
	}
	first, second := got.Results[0], got.Results[1]
	if first.RT != 512 || first.Response != "q" || !first.Correct() {
		t.Errorf("first result = %+v", first)
	}
	if second.RT != domain.NoReactionTime || second.Response != domain.NoResponse {
		t.Errorf("second result = %+v", second)
	}
	if second.Accuracy != nil {
		t.Errorf("unscored result accuracy = %v, want nil", *second.Accuracy)
	}
}

func TestSQLiteStore_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetLog(ctx, "missing"); !errors.Is(err, ports.ErrLogNotFound) {
		t.Errorf("GetLog() error = %v, want ErrLogNotFound", err)
	}

	log := encodingLog("dup", time.Now())
	if err := store.SaveLog(ctx, log); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}
	if err := store.SaveLog(ctx, log); !errors.Is(err, ports.ErrLogExists) {
		t.Errorf("second SaveLog() error = %v, want ErrLogExists", err)
	}
}

func TestSQLiteStore_ListLogs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	parity := domain.NewLog(domain.Metadata{SessionID: "p1", Variant: "parity", NTrials: 0})
	parity.Freeze(base.Add(time.Hour))
	if err := store.SaveLog(ctx, parity); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}
	if err := store.SaveLog(ctx, encodingLog("e1", base)); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}

	all, err := store.ListLogs(ctx, ports.ListOptions{})
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(all) != 2 || all[0].SessionID != "p1" || all[1].SessionID != "e1" {
		t.Fatalf("ListLogs() = %+v, want p1 then e1", all)
	}
	if all[1].NResults != 2 || all[1].ParticipantID != "worker-1" {
		t.Errorf("summary = %+v", all[1])
	}

	filtered, err := store.ListLogs(ctx, ports.ListOptions{Variant: "encoding"})
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(filtered) != 1 || filtered[0].SessionID != "e1" {
		t.Errorf("ListLogs(encoding) = %+v", filtered)
	}

	paged, err := store.ListLogs(ctx, ports.ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListLogs() error = %v", err)
	}
	if len(paged) != 1 || paged[0].SessionID != "e1" {
		t.Errorf("ListLogs(limit 1 offset 1) = %+v", paged)
	}
}

func TestSQLiteStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.SaveLog(ctx, encodingLog("s1", time.Now())); err != nil {
		t.Fatalf("SaveLog() error = %v", err)
	}
	store.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetLog(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLog() error = %v", err)
	}
	if got.Len() != 2 {
		t.Errorf("Len() = %d, want 2", got.Len())
	}
}
