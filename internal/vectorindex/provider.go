package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Metadata keys written on every passage record.
const (
	MetaDocumentID     = "documentId"
	MetaOrganizationID = "organizationId"
	MetaFilename       = "filename"
	MetaChunkIndex     = "chunkIndex"
	MetaAddedAt        = "addedAt"
)

// Record is a vector plus its text and flat metadata.
type Record struct {
	ID       string
	Values   []float32
	Text     string
	Metadata map[string]any
}

// Match is a query hit. Higher Score is more similar.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Filter is a conjunction of metadata equality conditions.
type Filter map[string]any

// Provider is a raw vector store. Implementations live under internal/platform.
type Provider interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error)
	DeleteWhere(ctx context.Context, filter Filter) error
	Ping(ctx context.Context) error
}

// Matches reports whether metadata satisfies every condition in f.
// Values are compared by their printed form so 3, int64(3) and 3.0 agree.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if scalarString(got) != scalarString(want) {
			return false
		}
	}
	return true
}

// Keys returns the filter keys in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects empty filters; an unfiltered delete or query is never intended.
func (f Filter) Validate() error {
	if len(f) == 0 {
		return fmt.Errorf("vector filter must not be empty")
	}
	for k, v := range f {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("vector filter has blank key")
		}
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("vector filter %q: unsupported value type %T", k, v)
		}
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	case float32:
		if t == float32(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
	}
	return fmt.Sprint(v)
}
