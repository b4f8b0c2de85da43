package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/karibu-backend/internal/data/repos"
	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/ingestion/extractor"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/platform/objstore"
)

const DefaultMaxUploadMB = 20

const unsupportedTypeMessage = "Unsupported file type: %s. Allowed types: PDF, Word documents, plain text, Markdown."

var mimeByExtension = map[string]string{
	".pdf":      extractor.MIMEPDF,
	".doc":      extractor.MIMEDOC,
	".docx":     extractor.MIMEDOCX,
	".txt":      extractor.MIMEText,
	".text":     extractor.MIMEText,
	".md":       extractor.MIMEMarkdown,
	".markdown": extractor.MIMEMarkdown,
}

const unscheduledReason = "Processing could not be scheduled. Try reprocessing the document."

type DocumentProcessor interface {
	Submit(ctx context.Context, doc *types.Document) error
}

type PassageRemover interface {
	DeleteByDocument(ctx context.Context, organizationID, documentID uuid.UUID) error
}

type DocumentConfig struct {
	KeyPrefix   string
	MaxUploadMB int
}

func DocumentConfigFromEnv() DocumentConfig {
	return DocumentConfig{
		KeyPrefix:   envutil.String("STORAGE_KEY_PREFIX", ""),
		MaxUploadMB: envutil.Int("UPLOAD_MAX_SIZE_MB", DefaultMaxUploadMB),
	}
}

func (c DocumentConfig) maxBytes() int64 {
	mb := c.MaxUploadMB
	if mb <= 0 {
		mb = DefaultMaxUploadMB
	}
	return int64(mb) << 20
}

type UploadInput struct {
	Filename string
	MimeType string
	// Size is the declared size; -1 when unknown.
	Size int64
	Body io.Reader
}

type DocumentService interface {
	Upload(ctx context.Context, p *ctxutil.Principal, in UploadInput) (*types.Document, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*types.Document, error)
	Get(ctx context.Context, orgID, id uuid.UUID) (*types.Document, error)
	Reprocess(ctx context.Context, orgID, id uuid.UUID) (*types.Document, error)
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	MaxUploadBytes() int64
}

type documentService struct {
	log       *logger.Logger
	cfg       DocumentConfig
	documents repos.DocumentRepo
	storage   objstore.Storage
	processor DocumentProcessor
	passages  PassageRemover
}

func NewDocumentService(
	log *logger.Logger,
	cfg DocumentConfig,
	documents repos.DocumentRepo,
	storage objstore.Storage,
	processor DocumentProcessor,
	passages PassageRemover,
) DocumentService {
	return &documentService{
		log:       log.With("service", "DocumentService"),
		cfg:       cfg,
		documents: documents,
		storage:   storage,
		processor: processor,
		passages:  passages,
	}
}

func (s *documentService) MaxUploadBytes() int64 { return s.cfg.maxBytes() }

// ResolveMIMEType returns the declared type, or one inferred from the filename
// extension when the declared type is empty or generic.
func ResolveMIMEType(declared, filename string) string {
	mt := strings.TrimSpace(declared)
	if mt != "" && !strings.HasPrefix(strings.ToLower(mt), "application/octet-stream") {
		return mt
	}
	if byExt, ok := mimeByExtension[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return mt
}

func (s *documentService) Upload(ctx context.Context, p *ctxutil.Principal, in UploadInput) (*types.Document, error) {
	if p == nil {
		return nil, userErr(http.StatusUnauthorized, "unauthorized", nil, "Authentication required.")
	}
	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == "/" || in.Body == nil {
		return nil, invalidArgument("missing_file", "No file provided.")
	}
	mimeType := ResolveMIMEType(in.MimeType, filename)
	format, err := extractor.ParseFormat(mimeType)
	if err != nil {
		shown := mimeType
		if shown == "" {
			shown = "unknown"
		}
		return nil, invalidArgument("unsupported_file_type", fmt.Sprintf(unsupportedTypeMessage, shown))
	}

	limit := s.cfg.maxBytes()
	tooLarge := invalidArgument("file_too_large", fmt.Sprintf("File too large. Maximum size is %d MB.", limit>>20))
	if in.Size > limit {
		return nil, tooLarge
	}
	data, err := io.ReadAll(io.LimitReader(in.Body, limit+1))
	if err != nil {
		return nil, internalError(s.log, "read_upload_failed", err)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge
	}

	log := s.log.WithContext(ctx).With("organization_id", p.OrganizationID)
	dbc := dbctx.Of(ctx)
	doc := &types.Document{
		OrganizationID: p.OrganizationID,
		UploadedBy:     p.UserID,
		Filename:       filename,
		MimeType:       mimeType,
		SizeBytes:      int64(len(data)),
		Status:         types.DocumentStatusUploaded,
	}
	if err := s.documents.Create(dbc, doc); err != nil {
		return nil, internalError(log, "create_document_failed", err)
	}

	key := objstore.DocumentKey(s.cfg.KeyPrefix, p.OrganizationID.String(), doc.ID.String(), format.Extension())
	if err := s.storage.UploadFile(ctx, key, bytes.NewReader(data), mimeType); err != nil {
		log.Error("Document upload failed", "document_id", doc.ID, "error", err)
		if _, derr := s.documents.Delete(dbctx.Of(ctxutil.Detached(ctx)), p.OrganizationID, doc.ID); derr != nil {
			log.Error("Failed to remove document row after upload failure", "document_id", doc.ID, "error", derr)
		}
		return nil, userErr(http.StatusInternalServerError, "upload_failed", err, "Failed to upload file. Please try again.")
	}
	if err := s.documents.SetStorageKey(dbc, p.OrganizationID, doc.ID, key); err != nil {
		return nil, internalError(log, "set_storage_key_failed", err, "document_id", doc.ID)
	}
	doc.StorageKey = key

	log.Info("Document uploaded", "document_id", doc.ID, "format", format.String(), "size_bytes", doc.SizeBytes)
	if s.processor != nil {
		if err := s.processor.Submit(ctx, doc); err != nil {
			log.Warn("Failed to submit document for processing", "document_id", doc.ID, "error", err)
			// Failed rather than uploaded so the document can be reprocessed.
			if mErr := s.documents.MarkFailed(dbctx.Of(ctx), doc.OrganizationID, doc.ID, unscheduledReason); mErr != nil {
				log.Warn("Failed to record scheduling failure", "document_id", doc.ID, "error", mErr)
			} else {
				reason := unscheduledReason
				doc.Status = types.DocumentStatusFailed
				doc.ErrorMessage = &reason
			}
		}
	}
	return doc, nil
}

func (s *documentService) List(ctx context.Context, orgID uuid.UUID) ([]*types.Document, error) {
	docs, err := s.documents.ListByOrganization(dbctx.Of(ctx), orgID)
	if err != nil {
		return nil, internalError(s.log, "list_documents_failed", err)
	}
	if docs == nil {
		docs = []*types.Document{}
	}
	return docs, nil
}

func (s *documentService) Get(ctx context.Context, orgID, id uuid.UUID) (*types.Document, error) {
	doc, err := s.documents.GetByID(dbctx.Of(ctx), orgID, id)
	if err != nil {
		return nil, internalError(s.log, "load_document_failed", err)
	}
	if doc == nil {
		return nil, notFound("document_not_found", "Document not found.")
	}
	return doc, nil
}

func (s *documentService) Reprocess(ctx context.Context, orgID, id uuid.UUID) (*types.Document, error) {
	doc, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.StorageKey) == "" {
		return nil, conflict("document_not_stored", "Document has no stored file to process.")
	}
	if s.processor == nil {
		return nil, userErr(http.StatusServiceUnavailable, "processing_unavailable", nil, "Document processing is not available.")
	}
	// The conditional status flip is the claim: a document already queued or
	// mid-run is never submitted a second time.
	claimed, err := s.documents.RequeueFinished(dbctx.Of(ctx), orgID, doc.ID)
	if err != nil {
		return nil, internalError(s.log, "requeue_document_failed", err, "document_id", doc.ID)
	}
	if !claimed {
		return nil, conflict("document_processing", "Document is already queued or being processed.")
	}
	doc.Status = types.DocumentStatusUploaded
	if err := s.processor.Submit(ctx, doc); err != nil {
		if mErr := s.documents.MarkFailed(dbctx.Of(ctx), orgID, doc.ID, unscheduledReason); mErr != nil {
			s.log.Warn("Failed to record scheduling failure", "document_id", doc.ID, "error", mErr)
		}
		return nil, internalError(s.log, "submit_document_failed", err, "document_id", doc.ID)
	}
	s.log.Info("Document resubmitted", "document_id", doc.ID, "organization_id", orgID)
	return doc, nil
}

func (s *documentService) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	doc, err := s.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	log := s.log.WithContext(ctx).With("document_id", doc.ID, "organization_id", orgID)

	if doc.StorageKey != "" {
		if err := s.storage.DeleteFile(ctx, doc.StorageKey); err != nil && !errors.Is(err, objstore.ErrObjectNotFound) {
			log.Warn("Failed to delete stored file", "storage_key", doc.StorageKey, "error", err)
		}
	}
	if s.passages != nil {
		if err := s.passages.DeleteByDocument(ctx, orgID, doc.ID); err != nil {
			log.Error("Failed to delete document passages", "error", err)
		}
	}
	deleted, err := s.documents.Delete(dbctx.Of(ctx), orgID, doc.ID)
	if err != nil {
		return internalError(log, "delete_document_failed", err)
	}
	if !deleted {
		return notFound("document_not_found", "Document not found.")
	}
	log.Info("Document deleted")
	return nil
}
