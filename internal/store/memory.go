package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microgate-project/microgate/internal/domain"
)

// MemoryStore is an in-process replay store for tests and single-instance
// development runs. Replay protection held in memory does not survive a
// restart; production deployments use PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*domain.ReplayRecord
}

var _ ReplayStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*domain.ReplayRecord)}
}

func (s *MemoryStore) Lookup(_ context.Context, txHash string) (*domain.ReplayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[txHash]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, rec *domain.ReplayRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.TxHash]; exists {
		return false, nil
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.records[rec.TxHash] = &cp
	return true, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, payer string, limit int) ([]domain.ReplayRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var records []domain.ReplayRecord
	for _, rec := range s.records {
		if payer != "" && !strings.EqualFold(rec.PayerAddress, payer) {
			continue
		}
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
