package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/passages/points" || r.URL.RawQuery != "wait=true" {
			t.Fatalf("url: got=%s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]any{vectorindex.MetaOrganizationID: "org-1"}
	err := s.Upsert(context.Background(), []vectorindex.Record{
		{ID: "doc_chunk_0", Values: []float32{1, 2, 3}, Text: "first", Metadata: meta},
		{ID: "doc_chunk_1", Values: []float32{4, 5, 6}, Text: "second"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	points, ok := captured["points"].([]any)
	if !ok || len(points) != 2 {
		t.Fatalf("points: got=%#v", captured["points"])
	}
	first := points[0].(map[string]any)
	if first["id"] != s.pointID("doc_chunk_0") {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadNamespaceKey] != "karibu" || payload[payloadRecordIDKey] != "doc_chunk_0" {
		t.Fatalf("bookkeeping payload: %#v", payload)
	}
	if payload[payloadTextKey] != "first" || payload[vectorindex.MetaOrganizationID] != "org-1" {
		t.Fatalf("payload content: %#v", payload)
	}
	if _, exists := meta[payloadNamespaceKey]; exists {
		t.Fatalf("input metadata mutated")
	}
}

func TestVectorStoreUpsertSplitsIntoBatches(t *testing.T) {
	var sizes []int
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		var body struct {
			Points []any `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		sizes = append(sizes, len(body.Points))
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	records := make([]vectorindex.Record, 600)
	for i := range records {
		records[i] = vectorindex.Record{ID: fmt.Sprintf("doc_chunk_%d", i), Values: []float32{1, 2, 3}}
	}
	if err := s.Upsert(context.Background(), records); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	want := []int{256, 256, 88}
	if len(sizes) != len(want) {
		t.Fatalf("requests: want=%v got=%v", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("requests: want=%v got=%v", want, sizes)
		}
	}
}

func TestVectorStoreUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	err := s.Upsert(context.Background(), []vectorindex.Record{{ID: "x", Values: []float32{1}}})
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) || opErrTyped.Code != OperationErrorValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVectorStoreQueryReturnsTextAndFilters(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/passages/points/search" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": "p-b", "score": 0.10, "payload": map[string]any{payloadRecordIDKey: "b", payloadTextKey: "bee", "filename": "x.pdf"}},
			{"id": "p-a", "score": 0.90, "payload": map[string]any{payloadRecordIDKey: "a", payloadTextKey: "ay"}},
		}), nil
	})

	matches, err := s.Query(context.Background(), []float32{1, 2, 3}, vectorindex.Filter{vectorindex.MetaOrganizationID: "org-1"}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "a" || matches[1].Text != "bee" {
		t.Fatalf("matches: %+v", matches)
	}
	if _, leaked := matches[1].Metadata[payloadRecordIDKey]; leaked {
		t.Fatalf("bookkeeping key leaked into metadata")
	}
	if matches[1].Metadata["filename"] != "x.pdf" {
		t.Fatalf("metadata: %#v", matches[1].Metadata)
	}

	must := captured["filter"].(map[string]any)["must"].([]any)
	if findConditionByKey(must, payloadNamespaceKey) == nil || findConditionByKey(must, vectorindex.MetaOrganizationID) == nil {
		t.Fatalf("filter missing conditions: %#v", must)
	}
	if captured["limit"] != float64(2) {
		t.Fatalf("limit: %v", captured["limit"])
	}
}

func TestVectorStoreDeleteWhereUsesFilter(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/passages/points/delete" {
			t.Fatalf("request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.DeleteWhere(context.Background(), vectorindex.Filter{
		vectorindex.MetaOrganizationID: "org-1",
		vectorindex.MetaDocumentID:     "doc-1",
	})
	if err != nil {
		t.Fatalf("DeleteWhere: %v", err)
	}
	must := captured["filter"].(map[string]any)["must"].([]any)
	if len(must) != 3 || findConditionByKey(must, vectorindex.MetaDocumentID) == nil {
		t.Fatalf("delete filter: %#v", must)
	}
}

func TestVectorStoreDeleteWhereRejectsEmptyFilter(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if err := s.DeleteWhere(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty filter")
	}
}

func TestVerifyReadyCreatesMissingCollection(t *testing.T) {
	var calls []string
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/readyz":
			return &http.Response{StatusCode: 200, Header: make(http.Header), Body: io.NopCloser(bytes.NewReader(nil))}, nil
		case r.Method == http.MethodGet && r.URL.Path == "/collections/passages":
			return &http.Response{StatusCode: 404, Header: make(http.Header), Body: io.NopCloser(bytes.NewReader([]byte(`{"status":{"error":"not found"}}`)))}, nil
		default:
			return okResponse(t, true), nil
		}
	})
	s.cfg.AutoCreate = true

	if err := s.verifyReady(context.Background()); err != nil {
		t.Fatalf("verifyReady: %v", err)
	}
	if len(calls) != 6 {
		t.Fatalf("calls: %v", calls)
	}
	if calls[2] != "PUT /collections/passages" {
		t.Fatalf("expected collection create, got %v", calls)
	}
}

func TestClassifyHTTPCallError(t *testing.T) {
	cases := []struct {
		err  error
		want OperationErrorCode
	}{
		{context.DeadlineExceeded, OperationErrorTimeout},
		{fmt.Errorf("boom"), OperationErrorTransportFailed},
	}
	for _, tc := range cases {
		var opErrTyped *OperationError
		if !errors.As(classifyHTTPCallError("query", "msg", tc.err), &opErrTyped) || opErrTyped.Code != tc.want {
			t.Fatalf("%v: want code %q got %v", tc.err, tc.want, opErrTyped)
		}
	}
}

func TestNormalizeScoreEuclid(t *testing.T) {
	s := &VectorStore{distance: "Euclid"}
	if got := s.normalizeScore(1); got != 0.5 {
		t.Fatalf("normalized: got=%v want=0.5", got)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *VectorStore {
	t.Helper()
	return &VectorStore{
		log:      logger.Nop(),
		cfg:      Config{Collection: "passages", Namespace: "karibu", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		http:     &http.Client{Transport: roundTripFunc(roundTrip)},
		distance: "Cosine",
	}
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func findConditionByKey(conds []any, key string) map[string]any {
	for _, c := range conds {
		m, ok := c.(map[string]any)
		if ok && m["key"] == key {
			return m
		}
	}
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
