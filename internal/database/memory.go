package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
	"github.com/nao1215/scanpipe/internal/status"
)

// MemoryDB keeps status, details and findings in process memory.
// It backs the "memory" driver used for one-off CLI scans and tests; all
// data is lost when the process exits.
type MemoryDB struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]*model.RunStatus
	details  map[uuid.UUID]map[string]model.StatusDetail
	findings map[uuid.UUID][]model.Finding
	nextID   int64
}

// NewMemoryDB creates an empty MemoryDB.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		statuses: make(map[uuid.UUID]*model.RunStatus),
		details:  make(map[uuid.UUID]map[string]model.StatusDetail),
		findings: make(map[uuid.UUID][]model.Finding),
	}
}

// UpsertStatus applies the same rules as the SQL stores under one lock.
func (m *MemoryDB) UpsertStatus(_ context.Context, u model.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	rs, ok := m.statuses[u.RequestID]
	if !ok {
		rs = &model.RunStatus{RequestID: u.RequestID, CreatedAt: now}
		m.statuses[u.RequestID] = rs
	}
	rs.Status = u.Status
	rs.Notes = u.Notes
	if u.WorkUnitID != nil {
		rs.WorkUnitID = *u.WorkUnitID
	}
	if u.SPK != nil {
		rs.SPK = *u.SPK
	}
	rs.UpdatedAt = now
	return nil
}

// GetStatus returns a copy of the status row.
func (m *MemoryDB) GetStatus(_ context.Context, requestID uuid.UUID) (*model.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.statuses[requestID]
	if !ok {
		return nil, status.ErrNotFound
	}
	cp := *rs
	return &cp, nil
}

// ListStatuses returns the runs of a work unit, newest first.
func (m *MemoryDB) ListStatuses(_ context.Context, workUnitID, spk string) ([]model.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.RunStatus
	for _, rs := range m.statuses {
		if rs.WorkUnitID != workUnitID || (spk != "" && rs.SPK != spk) {
			continue
		}
		out = append(out, *rs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteStatus removes a run together with its details and findings.
func (m *MemoryDB) DeleteStatus(_ context.Context, requestID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statuses[requestID]; !ok {
		return status.ErrNotFound
	}
	delete(m.statuses, requestID)
	delete(m.details, requestID)
	delete(m.findings, requestID)
	return nil
}

// UpsertDetail writes the status of one artifact. The parent must exist.
func (m *MemoryDB) UpsertDetail(_ context.Context, d model.StatusDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statuses[d.ParentRequestID]; !ok {
		return status.ErrNotFound
	}
	byArtifact, ok := m.details[d.ParentRequestID]
	if !ok {
		byArtifact = make(map[string]model.StatusDetail)
		m.details[d.ParentRequestID] = byArtifact
	}
	if existing, ok := byArtifact[d.Artifact]; ok {
		d.ID = existing.ID
	}
	d.UpdatedAt = time.Now().UTC()
	byArtifact[d.Artifact] = d
	return nil
}

// ListDetails returns the artifact rows of a run ordered by artifact.
func (m *MemoryDB) ListDetails(_ context.Context, requestID uuid.UUID) ([]model.StatusDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.StatusDetail, 0, len(m.details[requestID]))
	for _, d := range m.details[requestID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Artifact < out[j].Artifact })
	return out, nil
}

// InsertFindings appends a batch of findings.
func (m *MemoryDB) InsertFindings(_ context.Context, findings []model.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, f := range findings {
		m.nextID++
		f.ID = m.nextID
		f.CreatedAt = now
		m.findings[f.RequestID] = append(m.findings[f.RequestID], f)
	}
	return nil
}

// ListFindings returns the findings of a run in insertion order.
func (m *MemoryDB) ListFindings(_ context.Context, requestID uuid.UUID, limit int) ([]model.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.findings[requestID]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]model.Finding, len(all))
	copy(out, all)
	return out, nil
}

// Ping always succeeds.
func (m *MemoryDB) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryDB) Close() error { return nil }
