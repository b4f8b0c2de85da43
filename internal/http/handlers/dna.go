package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/karibu-backend/internal/http/response"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/services"
)

type DNAHandler struct {
	dna services.DNAService
}

func NewDNAHandler(dna services.DNAService) *DNAHandler {
	return &DNAHandler{dna: dna}
}

var errInvalidBody = errors.New("Invalid request body.")

// GET /api/dna
func (h *DNAHandler) Tree(c *gin.Context) {
	p := ctxutil.GetPrincipal(c.Request.Context())
	topics, err := h.dna.Tree(c.Request.Context(), p.OrganizationID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"topics": topics})
}

// POST /api/dna/topics
func (h *DNAHandler) CreateTopic(c *gin.Context) {
	var in services.TopicInput
	if !bindBody(c, &in) {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	topic, err := h.dna.CreateTopic(c.Request.Context(), p.OrganizationID, in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"topic": topic})
}

// PATCH /api/dna/topics/:id
func (h *DNAHandler) UpdateTopic(c *gin.Context) {
	id, ok := pathID(c, "invalid_topic_id")
	if !ok {
		return
	}
	var in services.TopicInput
	if !bindBody(c, &in) {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	topic, err := h.dna.UpdateTopic(c.Request.Context(), p.OrganizationID, id, in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"topic": topic})
}

// DELETE /api/dna/topics/:id
func (h *DNAHandler) DeleteTopic(c *gin.Context) {
	id, ok := pathID(c, "invalid_topic_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	if err := h.dna.DeleteTopic(c.Request.Context(), p.OrganizationID, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// POST /api/dna/topics/:id/subtopics
func (h *DNAHandler) CreateSubtopic(c *gin.Context) {
	topicID, ok := pathID(c, "invalid_topic_id")
	if !ok {
		return
	}
	var in services.TopicInput
	if !bindBody(c, &in) {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	sub, err := h.dna.CreateSubtopic(c.Request.Context(), p.OrganizationID, topicID, in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"subtopic": sub})
}

// PATCH /api/dna/subtopics/:id
func (h *DNAHandler) UpdateSubtopic(c *gin.Context) {
	id, ok := pathID(c, "invalid_subtopic_id")
	if !ok {
		return
	}
	var in services.TopicInput
	if !bindBody(c, &in) {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	sub, err := h.dna.UpdateSubtopic(c.Request.Context(), p.OrganizationID, id, in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"subtopic": sub})
}

// DELETE /api/dna/subtopics/:id
func (h *DNAHandler) DeleteSubtopic(c *gin.Context) {
	id, ok := pathID(c, "invalid_subtopic_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	if err := h.dna.DeleteSubtopic(c.Request.Context(), p.OrganizationID, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// POST /api/dna/subtopics/:id/synthesize
func (h *DNAHandler) Synthesize(c *gin.Context) {
	id, ok := pathID(c, "invalid_subtopic_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	n, err := h.dna.Synthesize(c.Request.Context(), p.OrganizationID, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "value_count": n})
}

type approvalRequest struct {
	Approval string `json:"approval"`
}

// PATCH /api/dna/values/:id/approval
func (h *DNAHandler) SetApproval(c *gin.Context) {
	id, ok := pathID(c, "invalid_value_id")
	if !ok {
		return
	}
	var req approvalRequest
	if !bindBody(c, &req) {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	v, err := h.dna.SetApproval(c.Request.Context(), p.OrganizationID, id, req.Approval)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"value": v})
}

// DELETE /api/dna/values/:id
func (h *DNAHandler) DeleteValue(c *gin.Context) {
	id, ok := pathID(c, "invalid_value_id")
	if !ok {
		return
	}
	p := ctxutil.GetPrincipal(c.Request.Context())
	if err := h.dna.DeleteValue(c.Request.Context(), p.OrganizationID, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

func bindBody(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errInvalidBody)
		return false
	}
	return true
}
