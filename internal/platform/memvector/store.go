// Package memvector is an in-process vector provider with brute-force cosine
// similarity. It backs tests and VECTOR_PROVIDER=memory for local runs.
package memvector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]vectorindex.Record
}

func New() *Store {
	return &Store{records: map[string]vectorindex.Record{}}
}

func (s *Store) Upsert(ctx context.Context, records []vectorindex.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("memvector: record id required")
		}
		s.records[r.ID] = cloneRecord(r)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, filter vectorindex.Filter, topK int) ([]vectorindex.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("memvector: query vector required")
	}
	if topK <= 0 {
		topK = 10
	}
	s.mu.RLock()
	out := make([]vectorindex.Match, 0, len(s.records))
	for _, r := range s.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		out = append(out, vectorindex.Match{
			ID:       r.ID,
			Score:    cosine(vector, r.Values),
			Text:     r.Text,
			Metadata: cloneMetadata(r.Metadata),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *Store) DeleteWhere(ctx context.Context, filter vectorindex.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := filter.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if filter.Matches(r.Metadata) {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len is the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (vectorindex.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return vectorindex.Record{}, false
	}
	return cloneRecord(r), true
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cloneRecord(r vectorindex.Record) vectorindex.Record {
	r.Values = append([]float32(nil), r.Values...)
	r.Metadata = cloneMetadata(r.Metadata)
	return r
}

func cloneMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
