// Package store provides in-memory implementations of the property store
// interfaces.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/parsonage-engine/property"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[property.RecordID]property.Record
	ledger  map[property.EpochKey]property.LedgerEntry
	runs    []property.SweepRun

	lockMu sync.Mutex
	lock   *property.RunLock
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[property.RecordID]property.Record),
		ledger:  make(map[property.EpochKey]property.LedgerEntry),
	}
}

func (m *Memory) ListActive(_ context.Context, category property.Category) ([]property.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLocked(category), nil
}

func (m *Memory) listActiveLocked(category property.Category) []property.Record {
	var result []property.Record
	for _, rec := range m.records {
		if rec.Category() == category && property.IsActive(rec) {
			result = append(result, property.Clone(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RecordID() < result[j].RecordID() })
	return result
}

func (m *Memory) Get(_ context.Context, id property.RecordID) (property.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id property.RecordID) (property.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, property.ErrNotFound
	}
	return property.Clone(rec), nil
}

func (m *Memory) Update(_ context.Context, id property.RecordID, patch property.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(id, patch)
}

func (m *Memory) updateLocked(id property.RecordID, patch property.Patch) error {
	rec, ok := m.records[id]
	if !ok {
		return property.ErrNotFound
	}
	next, err := property.ApplyPatch(rec, patch)
	if err != nil {
		return err
	}
	m.records[id] = next
	return nil
}

func (m *Memory) Put(_ context.Context, rec property.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putLocked(rec)
}

func (m *Memory) putLocked(rec property.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if prev, ok := m.records[rec.RecordID()]; ok && prev.Category() != rec.Category() {
		return &property.InvalidRecordError{
			ID:       rec.RecordID(),
			Category: rec.Category(),
			Field:    "id",
			Reason:   "is already used by a " + string(prev.Category()),
		}
	}
	m.records[rec.RecordID()] = property.Clone(rec)
	return nil
}

// Seen reports whether the ledger holds key.
func (m *Memory) Seen(_ context.Context, key property.EpochKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ledger[key]
	return ok, nil
}

// Record appends to the ledger. Append-only.
func (m *Memory) Record(_ context.Context, entry property.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordLocked(entry)
}

func (m *Memory) recordLocked(entry property.LedgerEntry) error {
	if _, ok := m.ledger[entry.Key]; ok {
		return property.ErrDuplicateEpochKey
	}
	m.ledger[entry.Key] = entry
	return nil
}

// LedgerEntries returns every ledger entry ordered by key.
func (m *Memory) LedgerEntries() []property.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]property.LedgerEntry, 0, len(m.ledger))
	for _, e := range m.ledger {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

func (m *Memory) SaveSweepRun(_ context.Context, run property.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListSweepRuns(_ context.Context, limit int) ([]property.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]property.SweepRun, 0, n)
	for i := len(m.runs) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, m.runs[i])
	}
	return result, nil
}

// AcquireRunLock takes the run lock unless another owner holds a live one.
func (m *Memory) AcquireRunLock(_ context.Context, lock property.RunLock) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if m.lock != nil && m.lock.Owner != lock.Owner && !m.lock.Expired(lock.AcquiredAt) {
		return property.HeldError(*m.lock)
	}
	m.lock = &lock
	return nil
}

func (m *Memory) ReleaseRunLock(_ context.Context, owner string) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	if m.lock != nil && m.lock.Owner == owner {
		m.lock = nil
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(property.Repository) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	recs := make(map[property.RecordID]property.Record, len(tm.records))
	for k, v := range tm.records {
		recs[k] = v
	}
	ledger := make(map[property.EpochKey]property.LedgerEntry, len(tm.ledger))
	for k, v := range tm.ledger {
		ledger[k] = v
	}
	return memorySnapshot{records: recs, ledger: ledger}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.records = s.records
	tm.ledger = s.ledger
}

// Stored records are never mutated in place, so a shallow map copy is a
// complete snapshot.
type memorySnapshot struct {
	records map[property.RecordID]property.Record
	ledger  map[property.EpochKey]property.LedgerEntry
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) ListActive(_ context.Context, category property.Category) ([]property.Record, error) {
	return tv.parent.listActiveLocked(category), nil
}

func (tv *txMemoryView) Get(_ context.Context, id property.RecordID) (property.Record, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) Update(_ context.Context, id property.RecordID, patch property.Patch) error {
	return tv.parent.updateLocked(id, patch)
}

func (tv *txMemoryView) Put(_ context.Context, rec property.Record) error {
	return tv.parent.putLocked(rec)
}

func (tv *txMemoryView) Seen(_ context.Context, key property.EpochKey) (bool, error) {
	_, ok := tv.parent.ledger[key]
	return ok, nil
}

func (tv *txMemoryView) Record(_ context.Context, entry property.LedgerEntry) error {
	return tv.parent.recordLocked(entry)
}
