package paymentsrepo

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store and LogsStore. It backs tests and runs
// without DB_ADDR.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	records  map[string]*Record
	failures []*FailureLog
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record), now: time.Now}
}

func (m *Memory) Create(_ context.Context, r *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[r.TransactionCode]; ok {
		return nil, ErrConflict
	}
	m.nextID++
	cp := *r
	cp.ID = m.nextID
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	cp.CreatedAt = m.now()
	cp.UpdatedAt = cp.CreatedAt
	m.records[cp.TransactionCode] = &cp

	out := cp
	return &out, nil
}

func (m *Memory) GetByTransactionCode(_ context.Context, code string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[code]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	return &out, nil
}

func (m *Memory) Exists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[code]
	return ok, nil
}

func (m *Memory) MarkPaid(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[code]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status == StatusPaid {
		return false, nil
	}
	r.Status = StatusPaid
	r.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) SetStatus(_ context.Context, code, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[code]
	if !ok || r.Status == StatusPaid {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = m.now()
	return nil
}

func (m *Memory) List(_ context.Context, status string, since *time.Time, limit, offset int) ([]*Record, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	m.mu.Lock()
	all := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		if status != "" && r.Status != status {
			continue
		}
		if since != nil && r.CreatedAt.Before(*since) {
			continue
		}
		cp := *r
		all = append(all, &cp)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, limit, offset), len(all), nil
}

func (m *Memory) InsertFailure(_ context.Context, l *FailureLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	l.ID = m.nextID
	l.CreatedAt = m.now()
	cp := *l
	m.failures = append(m.failures, &cp)
	return nil
}

func (m *Memory) ListFailures(_ context.Context, transactionCode string, limit, offset int) ([]*FailureLog, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	m.mu.Lock()
	var all []*FailureLog
	for i := len(m.failures) - 1; i >= 0; i-- {
		l := m.failures[i]
		if transactionCode != "" && l.TransactionCode != transactionCode {
			continue
		}
		cp := *l
		all = append(all, &cp)
	}
	m.mu.Unlock()

	return page(all, limit, offset), len(all), nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
