package vectorindex

import (
	"context"
	"time"

	"github.com/yungbote/karibu-backend/internal/observability"
)

type instrumentedProvider struct {
	name  string
	inner Provider
}

// Instrument wraps p so every call is timed into the vector operation metrics.
func Instrument(name string, p Provider) Provider {
	if p == nil {
		return nil
	}
	return &instrumentedProvider{name: name, inner: p}
}

func (s *instrumentedProvider) Upsert(ctx context.Context, records []Record) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, records)
	observability.Current().ObserveVectorOp(s.name, "upsert", err, time.Since(start))
	return err
}

func (s *instrumentedProvider) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	start := time.Now()
	out, err := s.inner.Query(ctx, vector, filter, topK)
	observability.Current().ObserveVectorOp(s.name, "query", err, time.Since(start))
	return out, err
}

func (s *instrumentedProvider) DeleteWhere(ctx context.Context, filter Filter) error {
	start := time.Now()
	err := s.inner.DeleteWhere(ctx, filter)
	observability.Current().ObserveVectorOp(s.name, "delete_where", err, time.Since(start))
	return err
}

func (s *instrumentedProvider) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	observability.Current().ObserveVectorOp(s.name, "ping", err, time.Since(start))
	return err
}
