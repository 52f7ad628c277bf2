package store

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-memory reference [Store]. A single mutex guards the
// record map and the per-subject index; operations on different keys are
// short critical sections and never block on I/O.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]Record
	bySubject map[string]map[string]struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records:   make(map[string]Record),
		bySubject: make(map[string]map[string]struct{}),
	}
}

// Save persists a record, overwriting any existing entry for the same token
// string. Overwrite-not-reject is the defined behavior: CSPRNG-generated
// tokens make a collision cryptographically negligible.
func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.records[rec.Token]; ok && old.SubjectID != rec.SubjectID {
		m.unindexLocked(old.SubjectID, old.Token)
	}

	m.records[rec.Token] = rec
	if rec.SubjectID != "" {
		idx, ok := m.bySubject[rec.SubjectID]
		if !ok {
			idx = make(map[string]struct{})
			m.bySubject[rec.SubjectID] = idx
		}
		idx[rec.Token] = struct{}{}
	}

	return nil
}

// Get returns a snapshot copy of the record, or [ErrNotFound].
func (m *Memory) Get(_ context.Context, token string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Revoke marks the record revoked and reports whether this call performed
// the Active-to-Revoked transition.
func (m *Memory) Revoke(_ context.Context, token string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[token]
	if !ok || rec.Revoked {
		return false, nil
	}

	wasActive := now.Before(rec.ExpiresAt)
	rec.Revoked = true
	rec.RevokedAt = now
	m.records[token] = rec

	return wasActive, nil
}

// RevokeAllForSubject revokes every non-revoked record for the subject with
// the same timestamp and returns the transitioned count.
func (m *Memory) RevokeAllForSubject(_ context.Context, subjectID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var revoked int
	for token := range m.bySubject[subjectID] {
		rec, ok := m.records[token]
		if !ok || rec.Revoked {
			continue
		}
		rec.Revoked = true
		rec.RevokedAt = now
		m.records[token] = rec
		revoked++
	}

	return revoked, nil
}

// CountActiveForSubject returns the number of currently valid records for
// the subject.
func (m *Memory) CountActiveForSubject(_ context.Context, subjectID string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active int
	for token := range m.bySubject[subjectID] {
		if rec, ok := m.records[token]; ok && rec.IsValid(now) {
			active++
		}
	}

	return active, nil
}

// SweepExpired removes records whose expiry has passed and prunes the
// subject index. Returns the removed count.
func (m *Memory) SweepExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for token, rec := range m.records {
		if now.Before(rec.ExpiresAt) {
			continue
		}
		delete(m.records, token)
		m.unindexLocked(rec.SubjectID, token)
		removed++
	}

	return removed, nil
}

// Len returns the current record count, expired entries included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *Memory) unindexLocked(subjectID, token string) {
	idx, ok := m.bySubject[subjectID]
	if !ok {
		return
	}
	delete(idx, token)
	if len(idx) == 0 {
		delete(m.bySubject, subjectID)
	}
}
