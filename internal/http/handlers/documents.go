package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/karibu-backend/internal/http/response"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/services"
)

type DocumentHandler struct {
	log  *logger.Logger
	docs services.DocumentService
}

func NewDocumentHandler(log *logger.Logger, docs services.DocumentService) *DocumentHandler {
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), docs: docs}
}

// POST /api/documents/upload
func (h *DocumentHandler) Upload(c *gin.Context) {
	p := ctxutil.GetPrincipal(c.Request.Context())
	if p == nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("Authentication required."))
		return
	}
	// Multipart framing can add a little over the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.docs.MaxUploadBytes()+(1<<20))

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondError(c, http.StatusBadRequest, "file_too_large", errors.New("File too large."))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "missing_file", errors.New("No file provided."))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.log.Error("Failed to open multipart file", "error", err)
		response.RespondError(c, http.StatusBadRequest, "invalid_file", errors.New("Could not read the uploaded file."))
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(c.Request.Context(), p, services.UploadInput{
		Filename: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

// GET /api/documents
func (h *DocumentHandler) List(c *gin.Context) {
	p := ctxutil.GetPrincipal(c.Request.Context())
	docs, err := h.docs.List(c.Request.Context(), p.OrganizationID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	doc, err := h.docs.Get(c.Request.Context(), p.OrganizationID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// POST /api/documents/:id/reprocess
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	doc, err := h.docs.Reprocess(c.Request.Context(), p.OrganizationID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "document": doc})
}

// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "invalid_document_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	if err := h.docs.Delete(c.Request.Context(), p.OrganizationID, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

func pathID(c *gin.Context, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, errors.New("Invalid id."))
		return uuid.Nil, false
	}
	return id, true
}
