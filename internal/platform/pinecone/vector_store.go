package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

const metadataTextKey = "text"

// Pinecone caps an upsert at 1000 vectors and 2MB; 100 dense vectors with
// passage metadata stays well under both.
const (
	defaultUpsertBatchSize = 100
	maxUpsertBatchSize     = 1000
)

// StoreConfig selects the index and namespace. StoreConfigFromEnv reads PINECONE_*.
type StoreConfig struct {
	IndexName       string
	IndexHost       string
	Namespace       string
	UpsertBatchSize int
}

func StoreConfigFromEnv() StoreConfig {
	return StoreConfig{
		IndexName:       envutil.String("PINECONE_INDEX_NAME", ""),
		IndexHost:       envutil.String("PINECONE_INDEX_HOST", ""),
		Namespace:       envutil.String("PINECONE_NAMESPACE", "karibu"),
		UpsertBatchSize: envutil.Int("PINECONE_UPSERT_BATCH_SIZE", defaultUpsertBatchSize),
	}
}

// VectorStore is a vectorindex.Provider over one Pinecone index namespace.
type VectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	namespace string
	batchSize int
}

func NewVectorStore(ctx context.Context, log *logger.Logger, pc Client, cfg StoreConfig) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	indexName := strings.TrimSpace(cfg.IndexName)
	host := strings.TrimSpace(cfg.IndexHost)
	if indexName == "" && host == "" {
		return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
	}

	// Resolving the host via describe_index costs a control-plane call on every boot.
	if host == "" {
		desc, err := pc.DescribeIndex(ctx, indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index",
			"index_name", indexName,
			"index_host", host,
		)
	}

	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = defaultUpsertBatchSize
	}
	if batch > maxUpsertBatchSize {
		batch = maxUpsertBatchSize
	}

	return &VectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
		namespace: strings.TrimSpace(cfg.Namespace),
		batchSize: batch,
	}, nil
}

func (s *VectorStore) Upsert(ctx context.Context, records []vectorindex.Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]Vector, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("pinecone upsert: record id required")
		}
		md := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			md[k] = v
		}
		md[metadataTextKey] = r.Text
		vectors = append(vectors, Vector{ID: r.ID, Values: r.Values, Metadata: md})
	}
	for start := 0; start < len(vectors); start += s.batchSize {
		end := start + s.batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		if _, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
			Namespace: s.namespace,
			Vectors:   vectors[start:end],
		}); err != nil {
			return fmt.Errorf("pinecone upsert vectors %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (s *VectorStore) Query(ctx context.Context, vector []float32, filter vectorindex.Filter, topK int) ([]vectorindex.Match, error) {
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       s.namespace,
		Vector:          vector,
		TopK:            topK,
		Filter:          translateFilter(filter),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]vectorindex.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		md := make(map[string]any, len(m.Metadata))
		var text string
		for k, v := range m.Metadata {
			if k == metadataTextKey {
				text, _ = v.(string)
				continue
			}
			md[k] = v
		}
		out = append(out, vectorindex.Match{ID: m.ID, Score: m.Score, Text: text, Metadata: md})
	}
	return out, nil
}

func (s *VectorStore) DeleteWhere(ctx context.Context, filter vectorindex.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	return s.pc.DeleteVectors(ctx, s.indexHost, DeleteRequest{
		Namespace: s.namespace,
		Filter:    translateFilter(filter),
	})
}

func (s *VectorStore) Ping(ctx context.Context) error {
	_, err := s.pc.DescribeIndexStats(ctx, s.indexHost)
	return err
}

// translateFilter renders equality conditions in Pinecone's $eq syntax.
func translateFilter(filter vectorindex.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	out := make(map[string]any, len(filter))
	for _, k := range filter.Keys() {
		out[k] = map[string]any{"$eq": filter[k]}
	}
	return out
}
