package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/karibu-backend/internal/data/repos"
	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/domain/dna"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/synthesis"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, subtopicID, organizationID uuid.UUID) (*synthesis.Result, error)
}

// TopicInput is a create or patch body. On patch, a blank Name is ignored and
// a nil Description leaves the description unchanged.
type TopicInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type SubtopicNode struct {
	*types.Subtopic
	Values []*types.Value `json:"values"`
}

type TopicNode struct {
	*types.Topic
	Subtopics []SubtopicNode `json:"subtopics"`
}

type DNAService interface {
	Tree(ctx context.Context, orgID uuid.UUID) ([]TopicNode, error)
	CreateTopic(ctx context.Context, orgID uuid.UUID, in TopicInput) (*types.Topic, error)
	UpdateTopic(ctx context.Context, orgID, id uuid.UUID, in TopicInput) (*types.Topic, error)
	DeleteTopic(ctx context.Context, orgID, id uuid.UUID) error
	CreateSubtopic(ctx context.Context, orgID, topicID uuid.UUID, in TopicInput) (*types.Subtopic, error)
	UpdateSubtopic(ctx context.Context, orgID, id uuid.UUID, in TopicInput) (*types.Subtopic, error)
	DeleteSubtopic(ctx context.Context, orgID, id uuid.UUID) error
	Synthesize(ctx context.Context, orgID, subtopicID uuid.UUID) (int, error)
	SetApproval(ctx context.Context, orgID, valueID uuid.UUID, approval string) (*types.Value, error)
	DeleteValue(ctx context.Context, orgID, valueID uuid.UUID) error
}

type dnaService struct {
	log         *logger.Logger
	topics      repos.TopicRepo
	subtopics   repos.SubtopicRepo
	values      repos.ValueRepo
	synthesizer Synthesizer
}

func NewDNAService(log *logger.Logger, r repos.Repos, synthesizer Synthesizer) DNAService {
	return &dnaService{
		log:         log.With("service", "DNAService"),
		topics:      r.Topics,
		subtopics:   r.Subtopics,
		values:      r.Values,
		synthesizer: synthesizer,
	}
}

func (s *dnaService) Tree(ctx context.Context, orgID uuid.UUID) ([]TopicNode, error) {
	dbc := dbctx.Of(ctx)
	topics, err := s.topics.ListByOrganization(dbc, orgID)
	if err != nil {
		return nil, internalError(s.log, "list_topics_failed", err)
	}
	subtopics, err := s.subtopics.ListByOrganization(dbc, orgID)
	if err != nil {
		return nil, internalError(s.log, "list_subtopics_failed", err)
	}
	values, err := s.values.ListByOrganization(dbc, orgID)
	if err != nil {
		return nil, internalError(s.log, "list_values_failed", err)
	}

	valuesBySub := map[uuid.UUID][]*types.Value{}
	for _, v := range values {
		valuesBySub[v.SubtopicID] = append(valuesBySub[v.SubtopicID], v)
	}
	subsByTopic := map[uuid.UUID][]SubtopicNode{}
	for _, st := range subtopics {
		vals := valuesBySub[st.ID]
		if vals == nil {
			vals = []*types.Value{}
		}
		subsByTopic[st.TopicID] = append(subsByTopic[st.TopicID], SubtopicNode{Subtopic: st, Values: vals})
	}

	out := make([]TopicNode, 0, len(topics))
	for _, t := range topics {
		subs := subsByTopic[t.ID]
		if subs == nil {
			subs = []SubtopicNode{}
		}
		out = append(out, TopicNode{Topic: t, Subtopics: subs})
	}
	return out, nil
}

func (s *dnaService) CreateTopic(ctx context.Context, orgID uuid.UUID, in TopicInput) (*types.Topic, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, invalidArgument("topic_name_required", "Topic name is required.")
	}
	topic := &types.Topic{OrganizationID: orgID, Name: name, Description: trimmedPtr(in.Description)}
	if err := s.topics.Create(dbctx.Of(ctx), topic); err != nil {
		return nil, internalError(s.log, "create_topic_failed", err)
	}
	s.log.Info("DNA topic created", "topic_id", topic.ID, "organization_id", orgID)
	return topic, nil
}

func (s *dnaService) UpdateTopic(ctx context.Context, orgID, id uuid.UUID, in TopicInput) (*types.Topic, error) {
	dbc := dbctx.Of(ctx)
	existing, err := s.topics.GetByID(dbc, orgID, id)
	if err != nil {
		return nil, internalError(s.log, "load_topic_failed", err)
	}
	if existing == nil {
		return nil, notFound("topic_not_found", "Topic not found.")
	}
	updated, err := s.topics.Update(dbc, orgID, id, patchOf(in))
	if err != nil {
		return nil, internalError(s.log, "update_topic_failed", err)
	}
	if updated == nil {
		return nil, notFound("topic_not_found", "Topic not found.")
	}
	return updated, nil
}

func (s *dnaService) DeleteTopic(ctx context.Context, orgID, id uuid.UUID) error {
	deleted, err := s.topics.Delete(dbctx.Of(ctx), orgID, id)
	if err != nil {
		return internalError(s.log, "delete_topic_failed", err)
	}
	if !deleted {
		return notFound("topic_not_found", "Topic not found.")
	}
	s.log.Info("DNA topic deleted", "topic_id", id, "organization_id", orgID)
	return nil
}

func (s *dnaService) CreateSubtopic(ctx context.Context, orgID, topicID uuid.UUID, in TopicInput) (*types.Subtopic, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, invalidArgument("subtopic_name_required", "Subtopic name is required.")
	}
	dbc := dbctx.Of(ctx)
	topic, err := s.topics.GetByID(dbc, orgID, topicID)
	if err != nil {
		return nil, internalError(s.log, "load_topic_failed", err)
	}
	if topic == nil {
		return nil, notFound("topic_not_found", "Topic not found.")
	}
	sub := &types.Subtopic{
		TopicID:         topic.ID,
		OrganizationID:  orgID,
		Name:            name,
		Description:     trimmedPtr(in.Description),
		SynthesisStatus: types.SynthesisIdle,
	}
	if err := s.subtopics.Create(dbc, sub); err != nil {
		return nil, internalError(s.log, "create_subtopic_failed", err)
	}
	s.log.Info("DNA subtopic created", "subtopic_id", sub.ID, "topic_id", topic.ID, "organization_id", orgID)
	return sub, nil
}

func (s *dnaService) UpdateSubtopic(ctx context.Context, orgID, id uuid.UUID, in TopicInput) (*types.Subtopic, error) {
	dbc := dbctx.Of(ctx)
	existing, err := s.subtopics.GetByID(dbc, orgID, id)
	if err != nil {
		return nil, internalError(s.log, "load_subtopic_failed", err)
	}
	if existing == nil {
		return nil, notFound("subtopic_not_found", "Subtopic not found.")
	}
	updated, err := s.subtopics.Update(dbc, orgID, id, patchOf(in))
	if err != nil {
		return nil, internalError(s.log, "update_subtopic_failed", err)
	}
	if updated == nil {
		return nil, notFound("subtopic_not_found", "Subtopic not found.")
	}
	return updated, nil
}

func (s *dnaService) DeleteSubtopic(ctx context.Context, orgID, id uuid.UUID) error {
	deleted, err := s.subtopics.Delete(dbctx.Of(ctx), orgID, id)
	if err != nil {
		return internalError(s.log, "delete_subtopic_failed", err)
	}
	if !deleted {
		return notFound("subtopic_not_found", "Subtopic not found.")
	}
	s.log.Info("DNA subtopic deleted", "subtopic_id", id, "organization_id", orgID)
	return nil
}

func (s *dnaService) Synthesize(ctx context.Context, orgID, subtopicID uuid.UUID) (int, error) {
	if s.synthesizer == nil {
		return 0, userErr(http.StatusServiceUnavailable, "synthesis_not_configured", nil, "Synthesis is not configured.")
	}
	res, err := s.synthesizer.Synthesize(ctx, subtopicID, orgID)
	if err == nil {
		return res.ValueCount, nil
	}
	msg := synthesis.UserMessage(err)
	switch {
	case errors.Is(err, synthesis.ErrNotFound):
		return 0, notFound("subtopic_not_found", msg)
	case errors.Is(err, synthesis.ErrNoRelevantContent):
		return 0, userErr(http.StatusUnprocessableEntity, "no_relevant_content", err, msg)
	case errors.Is(err, synthesis.ErrNoValuesExtracted):
		return 0, userErr(http.StatusUnprocessableEntity, "no_values_extracted", err, msg)
	case errors.Is(err, synthesis.ErrSynthesisInProgress):
		return 0, conflict("synthesis_in_progress", msg)
	default:
		return 0, userErr(http.StatusInternalServerError, "synthesis_failed", err, msg)
	}
}

func (s *dnaService) SetApproval(ctx context.Context, orgID, valueID uuid.UUID, approval string) (*types.Value, error) {
	if !dna.ValidReviewApproval(approval) {
		return nil, invalidArgument("invalid_approval", `approval must be "approved" or "rejected".`)
	}
	v, err := s.values.SetApproval(dbctx.Of(ctx), orgID, valueID, approval)
	if err != nil {
		return nil, internalError(s.log, "set_approval_failed", err)
	}
	if v == nil {
		return nil, notFound("value_not_found", "Value not found.")
	}
	return v, nil
}

func (s *dnaService) DeleteValue(ctx context.Context, orgID, valueID uuid.UUID) error {
	deleted, err := s.values.Delete(dbctx.Of(ctx), orgID, valueID)
	if err != nil {
		return internalError(s.log, "delete_value_failed", err)
	}
	if !deleted {
		return notFound("value_not_found", "Value not found.")
	}
	s.log.Info("DNA value deleted", "value_id", valueID, "organization_id", orgID)
	return nil
}

func patchOf(in TopicInput) repos.TopicPatch {
	var patch repos.TopicPatch
	if name := trimmed(in.Name); name != "" {
		patch.Name = &name
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		patch.Description = &d
	}
	return patch
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
