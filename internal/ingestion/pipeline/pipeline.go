package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/yungbote/karibu-backend/internal/data/repos"
	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/ingestion/chunker"
	"github.com/yungbote/karibu-backend/internal/ingestion/extractor"
	"github.com/yungbote/karibu-backend/internal/jobs/worker"
	"github.com/yungbote/karibu-backend/internal/observability"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/platform/objstore"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

// TaskKind labels pipeline runs in the worker pool.
const TaskKind = "document_process"

// EmptyTextReason is recorded on documents whose extraction produced only whitespace.
const EmptyTextReason = "Extracted text is empty; document may be image-only or corrupt"

var ErrEmptyText = errors.New("extracted text is empty")

type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// PassageIndex is the slice of the vector index the pipeline writes to.
type PassageIndex interface {
	DeleteByDocument(ctx context.Context, organizationID, documentID uuid.UUID) error
	AddPassages(ctx context.Context, passages []vectorindex.Passage) error
}

type Submitter interface {
	Submit(ctx context.Context, kind string, task worker.Task) error
}

type Deps struct {
	Log       *logger.Logger
	Documents repos.DocumentRepo
	Storage   objstore.Storage
	Extractor Extractor
	Chunker   chunker.Chunker
	Embedder  vectorindex.Embedder
	Index     PassageIndex
	// Pool runs Submit'd documents. Nil runs each on its own goroutine.
	Pool Submitter
}

// Pipeline turns an uploaded document into indexed passages:
// download, extract, chunk, embed, index.
type Pipeline struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	storage   objstore.Storage
	extractor Extractor
	chunker   chunker.Chunker
	embedder  vectorindex.Embedder
	index     PassageIndex
	pool      Submitter
}

func New(d Deps) (*Pipeline, error) {
	switch {
	case d.Log == nil:
		return nil, fmt.Errorf("logger required")
	case d.Documents == nil:
		return nil, fmt.Errorf("document repo required")
	case d.Storage == nil:
		return nil, fmt.Errorf("storage required")
	case d.Extractor == nil:
		return nil, fmt.Errorf("extractor required")
	case d.Embedder == nil:
		return nil, fmt.Errorf("embedder required")
	case d.Index == nil:
		return nil, fmt.Errorf("passage index required")
	}
	ch := d.Chunker
	if ch.Size == 0 {
		ch = chunker.Default
	}
	return &Pipeline{
		log:       d.Log.With("component", "DocumentPipeline"),
		documents: d.Documents,
		storage:   d.Storage,
		extractor: d.Extractor,
		chunker:   ch,
		embedder:  d.Embedder,
		index:     d.Index,
		pool:      d.Pool,
	}, nil
}

// Submit schedules ProcessDocument in the background and returns immediately.
func (p *Pipeline) Submit(ctx context.Context, doc *types.Document) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	snapshot := *doc
	task := func(taskCtx context.Context) error {
		p.ProcessDocument(taskCtx, &snapshot)
		return nil
	}
	if p.pool == nil {
		go func() { _ = task(ctxutil.Detached(ctx)) }()
		return nil
	}
	return p.pool.Submit(ctx, TaskKind, task)
}

// ProcessDocument runs the pipeline for doc and records the outcome on the
// document row. It never returns an error and never panics.
func (p *Pipeline) ProcessDocument(ctx context.Context, doc *types.Document) {
	ctx = ctxutil.Default(ctx)
	if doc == nil {
		return
	}
	log := p.log.WithContext(ctx).With("document_id", doc.ID, "organization_id", doc.OrganizationID)
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "pipeline.process_document",
		attribute.String("document.id", doc.ID.String()),
		attribute.String("document.mime_type", doc.MimeType),
	)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	defer func() {
		if r := recover(); r != nil {
			spanErr = fmt.Errorf("panic: %v", r)
			log.Error("Document processing panic", "panic", fmt.Sprint(r))
			p.markFailed(ctx, log, doc, "Document processing failed unexpectedly")
			observability.Current().ObserveDocumentProcessed("failed", time.Since(start), 0)
		}
	}()

	log.Info("Document processing started")

	if err := p.documents.SetStatus(dbctx.Of(ctx), doc.OrganizationID, doc.ID, types.DocumentStatusProcessing); err != nil {
		spanErr = err
		log.Error("Failed to set document status to processing", "error", err)
		return
	}

	res, err := p.run(ctx, doc)
	if err != nil {
		spanErr = err
		log.Error("Document processing failed", "error", err)
		p.markFailed(ctx, log, doc, failureReason(err))
		observability.Current().ObserveDocumentProcessed("failed", time.Since(start), 0)
		return
	}

	res.Diagnostics["duration_ms"] = time.Since(start).Milliseconds()
	diag, _ := json.Marshal(res.Diagnostics)
	if err := p.documents.MarkProcessed(dbctx.Of(ctx), doc.OrganizationID, doc.ID, res.FirstPassageID, datatypes.JSON(diag)); err != nil {
		spanErr = err
		log.Error("Failed to mark document processed", "error", err)
		p.markFailed(ctx, log, doc, failureReason(&stageError{stage: stageRecord, err: err}))
		observability.Current().ObserveDocumentProcessed("failed", time.Since(start), 0)
		return
	}

	observability.Current().ObserveDocumentProcessed("processed", time.Since(start), res.Chunks)
	log.Info("Document processed successfully", "chunk_count", res.Chunks, "duration_ms", time.Since(start).Milliseconds())
}

type result struct {
	Chunks         int
	FirstPassageID string
	Diagnostics    map[string]any
}

func (p *Pipeline) run(ctx context.Context, doc *types.Document) (*result, error) {
	data, err := objstore.ReadAll(ctx, p.storage, doc.StorageKey)
	if err != nil {
		return nil, &stageError{stage: stageDownload, err: err}
	}

	text, err := p.extractor.Extract(ctx, data, doc.MimeType)
	if err != nil {
		return nil, &stageError{stage: stageExtract, err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	if err := p.index.DeleteByDocument(ctx, doc.OrganizationID, doc.ID); err != nil {
		return nil, &stageError{stage: stageIndex, err: err}
	}

	vectors, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, &stageError{stage: stageEmbed, err: err}
	}
	if len(vectors) != len(chunks) {
		return nil, &stageError{stage: stageEmbed, err: fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks))}
	}

	addedAt := time.Now().UTC()
	passages := make([]vectorindex.Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = vectorindex.Passage{
			ID:             vectorindex.PassageID(doc.ID, i),
			DocumentID:     doc.ID,
			OrganizationID: doc.OrganizationID,
			Filename:       doc.Filename,
			ChunkIndex:     i,
			Text:           c,
			Vector:         vectors[i],
			AddedAt:        addedAt,
		}
	}
	if err := p.index.AddPassages(ctx, passages); err != nil {
		return nil, &stageError{stage: stageIndex, err: err}
	}

	format := "unknown"
	if f, err := extractor.ParseFormat(doc.MimeType); err == nil {
		format = f.String()
	}
	return &result{
		Chunks:         len(chunks),
		FirstPassageID: passages[0].ID,
		Diagnostics: map[string]any{
			"format": format,
			"chars":  utf8.RuneCountInString(text),
			"chunks": len(chunks),
		},
	}, nil
}

func (p *Pipeline) markFailed(ctx context.Context, log *logger.Logger, doc *types.Document, reason string) {
	if err := p.documents.MarkFailed(dbctx.Of(ctx), doc.OrganizationID, doc.ID, reason); err != nil {
		log.Error("Failed to set document status to failed", "error", err)
	}
}
