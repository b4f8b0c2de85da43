package pinecone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *VectorStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	pc, err := New(logger.Nop(), Config{APIKey: "pc-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexHost: srv.URL, Namespace: "karibu"})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	return s
}

func TestUpsertCarriesTextInMetadata(t *testing.T) {
	var got UpsertRequest
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/upsert" || r.Header.Get("Api-Key") != "pc-test" {
			t.Errorf("request: %s key=%q", r.URL.Path, r.Header.Get("Api-Key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	})

	err := s.Upsert(context.Background(), []vectorindex.Record{
		{ID: "d_chunk_0", Values: []float32{1}, Text: "hello", Metadata: map[string]any{"documentId": "d"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if got.Namespace != "karibu" || len(got.Vectors) != 1 {
		t.Fatalf("request: %+v", got)
	}
	if got.Vectors[0].Metadata["text"] != "hello" || got.Vectors[0].Metadata["documentId"] != "d" {
		t.Fatalf("metadata: %#v", got.Vectors[0].Metadata)
	}
}

func TestUpsertSplitsIntoBatches(t *testing.T) {
	var sizes []int
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		var req UpsertRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sizes = append(sizes, len(req.Vectors))
		if len(req.Vectors) > maxUpsertBatchSize {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	})

	records := make([]vectorindex.Record, 1250)
	for i := range records {
		records[i] = vectorindex.Record{ID: fmt.Sprintf("d_chunk_%d", i), Values: []float32{1}, Text: "t"}
	}
	if err := s.Upsert(context.Background(), records); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(sizes) != 13 {
		t.Fatalf("requests: want=13 got=%d", len(sizes))
	}
	total := 0
	for _, n := range sizes {
		if n > defaultUpsertBatchSize {
			t.Fatalf("batch of %d exceeds %d", n, defaultUpsertBatchSize)
		}
		total += n
	}
	if total != len(records) {
		t.Fatalf("vectors sent: want=%d got=%d", len(records), total)
	}
}

func TestQuerySplitsTextFromMetadata(t *testing.T) {
	var got QueryRequest
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"matches":[{"id":"a","score":0.9,"metadata":{"text":"alpha","organizationId":"o1"}}]}`))
	})

	matches, err := s.Query(context.Background(), []float32{1}, vectorindex.Filter{"organizationId": "o1"}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "alpha" {
		t.Fatalf("matches: %+v", matches)
	}
	if _, ok := matches[0].Metadata["text"]; ok {
		t.Fatalf("text should not remain in metadata")
	}
	cond, ok := got.Filter["organizationId"].(map[string]any)
	if !ok || cond["$eq"] != "o1" || !got.IncludeMetadata || got.TopK != 3 {
		t.Fatalf("query request: %+v", got)
	}
}

func TestDeleteWhereSendsFilter(t *testing.T) {
	var got DeleteRequest
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vectors/delete" {
			t.Errorf("path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{}`))
	})
	if err := s.DeleteWhere(context.Background(), vectorindex.Filter{"documentId": "d"}); err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	if len(got.IDs) != 0 || got.Filter["documentId"] == nil {
		t.Fatalf("delete request: %+v", got)
	}
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`slow down`))
	})
	err := s.Ping(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.HTTPStatusCode() != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
}
