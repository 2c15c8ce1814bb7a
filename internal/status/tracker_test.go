package status

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

// mockStore records every write and can be told to fail.
type mockStore struct {
	mu       sync.Mutex
	updates  []model.StatusUpdate
	details  []model.StatusDetail
	statuses map[uuid.UUID]model.RunStatus
	failErr  error
}

func newMockStore() *mockStore {
	return &mockStore{statuses: make(map[uuid.UUID]model.RunStatus)}
}

func (m *mockStore) UpsertStatus(_ context.Context, u model.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.updates = append(m.updates, u)
	rs := m.statuses[u.RequestID]
	rs.RequestID = u.RequestID
	rs.Status = u.Status
	rs.Notes = u.Notes
	if u.WorkUnitID != nil {
		rs.WorkUnitID = *u.WorkUnitID
	}
	if u.SPK != nil {
		rs.SPK = *u.SPK
	}
	m.statuses[u.RequestID] = rs
	return nil
}

func (m *mockStore) GetStatus(_ context.Context, id uuid.UUID) (*model.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.statuses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rs, nil
}

func (m *mockStore) ListStatuses(_ context.Context, workUnitID, spk string) ([]model.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RunStatus
	for _, rs := range m.statuses {
		if rs.WorkUnitID == workUnitID && (spk == "" || rs.SPK == spk) {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertDetail(_ context.Context, d model.StatusDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.details = append(m.details, d)
	return nil
}

func (m *mockStore) ListDetails(_ context.Context, id uuid.UUID) ([]model.StatusDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StatusDetail
	for _, d := range m.details {
		if d.ParentRequestID == id {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteStatus(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statuses[id]; !ok {
		return ErrNotFound
	}
	delete(m.statuses, id)
	return nil
}

func TestTracker_Upsert(t *testing.T) {
	t.Parallel()

	t.Run("identity fields only with options", func(t *testing.T) {
		t.Parallel()

		store := newMockStore()
		tracker := NewTracker(store)
		ctx := context.Background()
		id := uuid.New()

		req := model.ScanRequest{Technology: model.TechnologyJava, WorkUnitID: "W1", SPK: "SPK1"}
		if err := tracker.Upsert(ctx, id, model.StatusInitiated, "", WithRequest(req)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if err := tracker.Upsert(ctx, id, model.StatusCompleted, ""); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		first, second := store.updates[0], store.updates[1]
		if first.WorkUnitID == nil || *first.WorkUnitID != "W1" || first.SPK == nil || *first.SPK != "SPK1" {
			t.Errorf("first update identity = %v, %v", first.WorkUnitID, first.SPK)
		}
		if second.WorkUnitID != nil || second.SPK != nil {
			t.Error("second update should not carry identity fields")
		}

		got, err := tracker.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.WorkUnitID != "W1" || got.Status != model.StatusCompleted {
			t.Errorf("Get() = %+v", got)
		}
	})

	t.Run("single identity option", func(t *testing.T) {
		t.Parallel()

		store := newMockStore()
		tracker := NewTracker(store)

		if err := tracker.Upsert(context.Background(), uuid.New(), "X", "", WithSPK("SPK9")); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		u := store.updates[0]
		if u.WorkUnitID != nil || u.SPK == nil || *u.SPK != "SPK9" {
			t.Errorf("update identity = %v, %v", u.WorkUnitID, u.SPK)
		}
	})

	t.Run("store failure is logged and returned", func(t *testing.T) {
		t.Parallel()

		storeErr := errors.New("disk full")
		store := newMockStore()
		store.failErr = storeErr

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		tracker := NewTracker(store, WithLogger(logger))

		err := tracker.Upsert(context.Background(), uuid.New(), model.StatusInitiated, "")
		if !errors.Is(err, storeErr) {
			t.Errorf("Upsert() error = %v, want %v", err, storeErr)
		}
		if !strings.Contains(buf.String(), "failed to write scan status") {
			t.Errorf("expected error log, got %q", buf.String())
		}
	})
}

func TestTracker_StageBoundaries(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	tracker := NewTracker(store)
	ctx := context.Background()
	id := uuid.New()

	if err := tracker.StageStarted(ctx, id, "MTA SCAN"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.StageCompleted(ctx, id, "MTA SCAN", "2 reports"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.StageFailed(ctx, id, "LOAD MTA RESULT", errors.New("bad csv")); err != nil {
		t.Fatal(err)
	}

	want := []struct{ status, notes string }{
		{"MTA SCAN STARTED", ""},
		{"MTA SCAN COMPLETED", "2 reports"},
		{"ERROR", "LOAD MTA RESULT: bad csv"},
	}
	if len(store.updates) != len(want) {
		t.Fatalf("got %d updates, want %d", len(store.updates), len(want))
	}
	for i, w := range want {
		if store.updates[i].Status != w.status || store.updates[i].Notes != w.notes {
			t.Errorf("update %d = (%q, %q), want (%q, %q)",
				i, store.updates[i].Status, store.updates[i].Notes, w.status, w.notes)
		}
	}
}

func TestTracker_RecordDetail(t *testing.T) {
	t.Parallel()

	t.Run("writes a detail row", func(t *testing.T) {
		t.Parallel()

		store := newMockStore()
		tracker := NewTracker(store)
		id := uuid.New()

		if err := tracker.RecordDetail(context.Background(), id, "app.ear", model.DetailScanned); err != nil {
			t.Fatalf("RecordDetail() error = %v", err)
		}
		details, err := tracker.Details(context.Background(), id)
		if err != nil {
			t.Fatalf("Details() error = %v", err)
		}
		if len(details) != 1 || details[0].Artifact != "app.ear" || details[0].Status != model.DetailScanned {
			t.Errorf("Details() = %+v", details)
		}
		if details[0].ID == uuid.Nil {
			t.Error("detail row has no id")
		}
	})

	t.Run("failure is returned", func(t *testing.T) {
		t.Parallel()

		store := newMockStore()
		store.failErr = errors.New("locked")
		tracker := NewTracker(store, WithLogger(slog.New(slog.DiscardHandler)))

		if err := tracker.RecordDetail(context.Background(), uuid.New(), "a", model.DetailFailed); err == nil {
			t.Error("RecordDetail() should fail")
		}
	})
}

func TestTracker_HistoryAndDelete(t *testing.T) {
	t.Parallel()

	store := newMockStore()
	tracker := NewTracker(store)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_ = tracker.Upsert(ctx, a, model.StatusCompleted, "", WithWorkUnit("W1"), WithSPK("S1"))
	_ = tracker.Upsert(ctx, b, model.StatusError, "", WithWorkUnit("W1"), WithSPK("S2"))

	runs, err := tracker.History(ctx, "W1", "S2")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].RequestID != b {
		t.Errorf("History() = %+v", runs)
	}

	if err := tracker.Delete(ctx, a); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := tracker.Delete(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := tracker.Get(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
