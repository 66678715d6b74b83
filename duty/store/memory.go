// Package store provides an in-memory duty.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/duty-ledger/duty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	active      map[string]duty.ActiveSession
	sessions    []duty.CompletedSession
	rollups     []duty.MonthlyRollup
	rollupIndex map[rollupKey]int
	adjustments []duty.AdjustmentRecord
	nextSession int64
	nextAdjust  int64
}

var _ duty.TxStore = (*TxMemory)(nil)

type rollupKey struct {
	PersonID string
	Key      duty.MonthKey
}

func NewMemory() *Memory {
	return &Memory{
		active:      make(map[string]duty.ActiveSession),
		rollupIndex: make(map[rollupKey]int),
	}
}

func (m *Memory) InsertActive(_ context.Context, s duty.ActiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertActiveLocked(s)
}

func (m *Memory) GetActive(_ context.Context, personID string) (*duty.ActiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getActiveLocked(personID), nil
}

func (m *Memory) TakeActive(_ context.Context, personID string) (*duty.ActiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeActiveLocked(personID), nil
}

func (m *Memory) UpdateRidealong(_ context.Context, personID string, ridealongID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRidealongLocked(personID, ridealongID), nil
}

func (m *Memory) ListActive(_ context.Context) ([]duty.ActiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLocked(), nil
}

func (m *Memory) AddToRollup(_ context.Context, d duty.RollupDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addToRollupLocked(d)
	return nil
}

func (m *Memory) AppendSession(_ context.Context, s duty.CompletedSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendSessionLocked(s), nil
}

func (m *Memory) GetRollup(_ context.Context, personID string, key duty.MonthKey) (*duty.MonthlyRollup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRollupLocked(personID, key), nil
}

func (m *Memory) ListRollups(_ context.Context, key duty.MonthKey, limit int) ([]duty.MonthlyRollup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRollupsLocked(key, limit), nil
}

func (m *Memory) SumSessionsSince(_ context.Context, since time.Time, limit int) ([]duty.LeaderboardRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumSessionsSinceLocked(since, limit), nil
}

func (m *Memory) ListSessions(_ context.Context, personID string, from, to time.Time) ([]duty.CompletedSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSessionsLocked(personID, from, to), nil
}

func (m *Memory) AppendAdjustment(_ context.Context, a duty.AdjustmentRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAdjustmentLocked(a), nil
}

func (m *Memory) ListAdjustments(_ context.Context, personID string, limit int) ([]duty.AdjustmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAdjustmentsLocked(personID, limit), nil
}

// =============================================================================
// LOCKED HELPERS - caller holds m.mu
// =============================================================================

func (m *Memory) insertActiveLocked(s duty.ActiveSession) error {
	if _, ok := m.active[s.PersonID]; ok {
		return duty.ErrAlreadyActive
	}
	s.RidealongID = cloneID(s.RidealongID)
	m.active[s.PersonID] = s
	return nil
}

func (m *Memory) getActiveLocked(personID string) *duty.ActiveSession {
	s, ok := m.active[personID]
	if !ok {
		return nil
	}
	s.RidealongID = cloneID(s.RidealongID)
	return &s
}

func (m *Memory) takeActiveLocked(personID string) *duty.ActiveSession {
	s := m.getActiveLocked(personID)
	delete(m.active, personID)
	return s
}

func (m *Memory) updateRidealongLocked(personID string, ridealongID *string) bool {
	s, ok := m.active[personID]
	if !ok || sameID(s.RidealongID, ridealongID) {
		return false
	}
	s.RidealongID = cloneID(ridealongID)
	m.active[personID] = s
	return true
}

func (m *Memory) listActiveLocked() []duty.ActiveSession {
	result := make([]duty.ActiveSession, 0, len(m.active))
	for _, s := range m.active {
		s.RidealongID = cloneID(s.RidealongID)
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].PersonID < result[j].PersonID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

func (m *Memory) addToRollupLocked(d duty.RollupDelta) {
	k := rollupKey{PersonID: d.PersonID, Key: d.Key}
	if i, ok := m.rollupIndex[k]; ok {
		m.rollups[i].TotalSeconds += d.Seconds
		m.rollups[i].ShiftsCompleted += d.Shifts
		return
	}
	m.rollupIndex[k] = len(m.rollups)
	m.rollups = append(m.rollups, duty.MonthlyRollup{
		PersonID:        d.PersonID,
		Key:             d.Key,
		TotalSeconds:    d.Seconds,
		ShiftsCompleted: d.Shifts,
	})
}

func (m *Memory) appendSessionLocked(s duty.CompletedSession) int64 {
	m.nextSession++
	s.ID = m.nextSession
	s.RidealongID = cloneID(s.RidealongID)
	m.sessions = append(m.sessions, s)
	return s.ID
}

func (m *Memory) getRollupLocked(personID string, key duty.MonthKey) *duty.MonthlyRollup {
	i, ok := m.rollupIndex[rollupKey{PersonID: personID, Key: key}]
	if !ok {
		return nil
	}
	r := m.rollups[i]
	return &r
}

func (m *Memory) listRollupsLocked(key duty.MonthKey, limit int) []duty.MonthlyRollup {
	result := make([]duty.MonthlyRollup, 0)
	for _, r := range m.rollups {
		if r.Key == key {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TotalSeconds > result[j].TotalSeconds
	})
	return truncate(result, limit)
}

func (m *Memory) sumSessionsSinceLocked(since time.Time, limit int) []duty.LeaderboardRow {
	index := make(map[string]int)
	result := make([]duty.LeaderboardRow, 0)
	for _, s := range m.sessions {
		if s.EndTime.Before(since) {
			continue
		}
		i, ok := index[s.PersonID]
		if !ok {
			i = len(result)
			index[s.PersonID] = i
			result = append(result, duty.LeaderboardRow{PersonID: s.PersonID})
		}
		result[i].TotalSeconds += s.DurationSeconds
		result[i].ShiftsCompleted++
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TotalSeconds > result[j].TotalSeconds
	})
	return truncate(result, limit)
}

func (m *Memory) listSessionsLocked(personID string, from, to time.Time) []duty.CompletedSession {
	result := make([]duty.CompletedSession, 0)
	for _, s := range m.sessions {
		if s.PersonID != personID || s.EndTime.Before(from) || !s.EndTime.Before(to) {
			continue
		}
		s.RidealongID = cloneID(s.RidealongID)
		result = append(result, s)
	}
	return result
}

func (m *Memory) appendAdjustmentLocked(a duty.AdjustmentRecord) int64 {
	m.nextAdjust++
	a.ID = m.nextAdjust
	m.adjustments = append(m.adjustments, a)
	return a.ID
}

func (m *Memory) listAdjustmentsLocked(personID string, limit int) []duty.AdjustmentRecord {
	result := make([]duty.AdjustmentRecord, 0)
	for i := len(m.adjustments) - 1; i >= 0; i-- {
		if m.adjustments[i].PersonID == personID {
			result = append(result, m.adjustments[i])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return truncate(result, limit)
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
func (tm *TxMemory) WithTx(_ context.Context, fn func(duty.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	active      map[string]duty.ActiveSession
	sessions    []duty.CompletedSession
	rollups     []duty.MonthlyRollup
	rollupIndex map[rollupKey]int
	adjustments []duty.AdjustmentRecord
	nextSession int64
	nextAdjust  int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	active := make(map[string]duty.ActiveSession, len(tm.active))
	for k, v := range tm.active {
		active[k] = v
	}
	index := make(map[rollupKey]int, len(tm.rollupIndex))
	for k, v := range tm.rollupIndex {
		index[k] = v
	}
	return memorySnapshot{
		active:      active,
		sessions:    append([]duty.CompletedSession{}, tm.sessions...),
		rollups:     append([]duty.MonthlyRollup{}, tm.rollups...),
		rollupIndex: index,
		adjustments: append([]duty.AdjustmentRecord{}, tm.adjustments...),
		nextSession: tm.nextSession,
		nextAdjust:  tm.nextAdjust,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.active = s.active
	tm.sessions = s.sessions
	tm.rollups = s.rollups
	tm.rollupIndex = s.rollupIndex
	tm.adjustments = s.adjustments
	tm.nextSession = s.nextSession
	tm.nextAdjust = s.nextAdjust
}

// txMemoryView operates on the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) InsertActive(_ context.Context, s duty.ActiveSession) error {
	return tv.parent.insertActiveLocked(s)
}

func (tv *txMemoryView) GetActive(_ context.Context, personID string) (*duty.ActiveSession, error) {
	return tv.parent.getActiveLocked(personID), nil
}

func (tv *txMemoryView) TakeActive(_ context.Context, personID string) (*duty.ActiveSession, error) {
	return tv.parent.takeActiveLocked(personID), nil
}

func (tv *txMemoryView) UpdateRidealong(_ context.Context, personID string, ridealongID *string) (bool, error) {
	return tv.parent.updateRidealongLocked(personID, ridealongID), nil
}

func (tv *txMemoryView) ListActive(_ context.Context) ([]duty.ActiveSession, error) {
	return tv.parent.listActiveLocked(), nil
}

func (tv *txMemoryView) AddToRollup(_ context.Context, d duty.RollupDelta) error {
	tv.parent.addToRollupLocked(d)
	return nil
}

func (tv *txMemoryView) AppendSession(_ context.Context, s duty.CompletedSession) (int64, error) {
	return tv.parent.appendSessionLocked(s), nil
}

func (tv *txMemoryView) GetRollup(_ context.Context, personID string, key duty.MonthKey) (*duty.MonthlyRollup, error) {
	return tv.parent.getRollupLocked(personID, key), nil
}

func (tv *txMemoryView) ListRollups(_ context.Context, key duty.MonthKey, limit int) ([]duty.MonthlyRollup, error) {
	return tv.parent.listRollupsLocked(key, limit), nil
}

func (tv *txMemoryView) SumSessionsSince(_ context.Context, since time.Time, limit int) ([]duty.LeaderboardRow, error) {
	return tv.parent.sumSessionsSinceLocked(since, limit), nil
}

func (tv *txMemoryView) ListSessions(_ context.Context, personID string, from, to time.Time) ([]duty.CompletedSession, error) {
	return tv.parent.listSessionsLocked(personID, from, to), nil
}

func (tv *txMemoryView) AppendAdjustment(_ context.Context, a duty.AdjustmentRecord) (int64, error) {
	return tv.parent.appendAdjustmentLocked(a), nil
}

func (tv *txMemoryView) ListAdjustments(_ context.Context, personID string, limit int) ([]duty.AdjustmentRecord, error) {
	return tv.parent.listAdjustmentsLocked(personID, limit), nil
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func cloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
