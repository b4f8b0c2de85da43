package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/karibu-backend/internal/data/repos"
	"github.com/yungbote/karibu-backend/internal/data/repos/testutil"
	types "github.com/yungbote/karibu-backend/internal/domain"
	errs "github.com/yungbote/karibu-backend/internal/pkg/errors"
	"github.com/yungbote/karibu-backend/internal/platform/apierr"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/synthesis"
)

type fakeSynthesizer struct {
	count int
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, subtopicID, organizationID uuid.UUID) (*synthesis.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &synthesis.Result{ValueCount: f.count}, nil
}

func newDNAService(t *testing.T, synth Synthesizer) (DNAService, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	return NewDNAService(logger.Nop(), repos.New(db, logger.Nop()), synth), db
}

func requireAPIError(t *testing.T, err error, status int, code string) *apierr.Error {
	t.Helper()
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok, "expected apierr.Error, got %T: %v", err, err)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, code, ae.Code)
	return ae
}

func strPtr(s string) *string { return &s }

func TestDNATreeShapeAndEmptyLists(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()

	culture := testutil.SeedTopic(t, ctx, db, org, "Culture")
	empty := testutil.SeedTopic(t, ctx, db, org, "Empty")
	feedback := testutil.SeedSubtopic(t, ctx, db, culture, "Feedback")
	testutil.SeedSubtopic(t, ctx, db, culture, "Hiring")
	testutil.SeedValue(t, ctx, db, feedback, "first")
	testutil.SeedValue(t, ctx, db, feedback, "second")

	other := testutil.SeedTopic(t, ctx, db, uuid.New(), "Foreign")
	testutil.SeedSubtopic(t, ctx, db, other, "Hidden")

	tree, err := svc.Tree(ctx, org)
	require.NoError(t, err)
	require.Len(t, tree, 2)

	byName := map[string]TopicNode{}
	for _, n := range tree {
		byName[n.Name] = n
	}
	require.Contains(t, byName, "Culture")
	require.Contains(t, byName, "Empty")
	assert.Equal(t, empty.ID, byName["Empty"].ID)
	assert.NotNil(t, byName["Empty"].Subtopics)
	assert.Empty(t, byName["Empty"].Subtopics)

	subs := map[string]SubtopicNode{}
	for _, s := range byName["Culture"].Subtopics {
		subs[s.Name] = s
	}
	require.Len(t, subs, 2)
	require.Len(t, subs["Feedback"].Values, 2)
	assert.Equal(t, "first", subs["Feedback"].Values[0].Content)
	assert.Equal(t, "second", subs["Feedback"].Values[1].Content)
	assert.NotNil(t, subs["Hiring"].Values)

	raw, err := json.Marshal(byName["Empty"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"subtopics":[]`)
	raw, err = json.Marshal(subs["Hiring"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"values":[]`)
}

func TestDNACreateTopicValidation(t *testing.T) {
	svc, _ := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()

	for _, name := range []*string{nil, strPtr(""), strPtr("   ")} {
		_, err := svc.CreateTopic(ctx, org, TopicInput{Name: name})
		ae := requireAPIError(t, err, http.StatusBadRequest, "topic_name_required")
		assert.Equal(t, "Topic name is required.", ae.Error())
		assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	}

	topic, err := svc.CreateTopic(ctx, org, TopicInput{Name: strPtr("  Culture  "), Description: strPtr(" How we work ")})
	require.NoError(t, err)
	assert.Equal(t, "Culture", topic.Name)
	require.NotNil(t, topic.Description)
	assert.Equal(t, "How we work", *topic.Description)
	assert.Equal(t, org, topic.OrganizationID)
}

func TestDNAUpdateTopicPatchSemantics(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()
	topic := testutil.SeedTopic(t, ctx, db, org, "Culture")

	got, err := svc.UpdateTopic(ctx, org, topic.ID, TopicInput{Name: strPtr("   "), Description: strPtr("desc")})
	require.NoError(t, err)
	assert.Equal(t, "Culture", got.Name)
	require.NotNil(t, got.Description)
	assert.Equal(t, "desc", *got.Description)

	got, err = svc.UpdateTopic(ctx, org, topic.ID, TopicInput{Name: strPtr("Values")})
	require.NoError(t, err)
	assert.Equal(t, "Values", got.Name)
	require.NotNil(t, got.Description)
	assert.Equal(t, "desc", *got.Description)

	_, err = svc.UpdateTopic(ctx, uuid.New(), topic.ID, TopicInput{Name: strPtr("Stolen")})
	requireAPIError(t, err, http.StatusNotFound, "topic_not_found")
}

func TestDNADeleteTopicIsTenantScoped(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()
	topic := testutil.SeedTopic(t, ctx, db, org, "Culture")
	sub := testutil.SeedSubtopic(t, ctx, db, topic, "Feedback")
	testutil.SeedValue(t, ctx, db, sub, "v")

	err := svc.DeleteTopic(ctx, uuid.New(), topic.ID)
	requireAPIError(t, err, http.StatusNotFound, "topic_not_found")

	require.NoError(t, svc.DeleteTopic(ctx, org, topic.ID))
	tree, err := svc.Tree(ctx, org)
	require.NoError(t, err)
	assert.Empty(t, tree)

	var values int64
	require.NoError(t, db.Model(&types.Value{}).Where("subtopic_id = ?", sub.ID).Count(&values).Error)
	assert.Zero(t, values)
}

func TestDNACreateSubtopicRequiresOwnedTopic(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()
	topic := testutil.SeedTopic(t, ctx, db, org, "Culture")

	_, err := svc.CreateSubtopic(ctx, org, topic.ID, TopicInput{Name: strPtr(" ")})
	requireAPIError(t, err, http.StatusBadRequest, "subtopic_name_required")

	_, err = svc.CreateSubtopic(ctx, uuid.New(), topic.ID, TopicInput{Name: strPtr("Feedback")})
	ae := requireAPIError(t, err, http.StatusNotFound, "topic_not_found")
	assert.Equal(t, "Topic not found.", ae.Error())

	sub, err := svc.CreateSubtopic(ctx, org, topic.ID, TopicInput{Name: strPtr("Feedback")})
	require.NoError(t, err)
	assert.Equal(t, types.SynthesisIdle, sub.SynthesisStatus)
	assert.Equal(t, topic.ID, sub.TopicID)
	assert.Equal(t, org, sub.OrganizationID)
	assert.Nil(t, sub.Description)
}

func TestDNAUpdateAndDeleteSubtopic(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()
	sub := testutil.SeedSubtopic(t, ctx, db, testutil.SeedTopic(t, ctx, db, org, "Culture"), "Feedback")

	got, err := svc.UpdateSubtopic(ctx, org, sub.ID, TopicInput{Name: strPtr("Candor")})
	require.NoError(t, err)
	assert.Equal(t, "Candor", got.Name)

	_, err = svc.UpdateSubtopic(ctx, org, uuid.New(), TopicInput{Name: strPtr("x")})
	requireAPIError(t, err, http.StatusNotFound, "subtopic_not_found")

	requireAPIError(t, svc.DeleteSubtopic(ctx, uuid.New(), sub.ID), http.StatusNotFound, "subtopic_not_found")
	require.NoError(t, svc.DeleteSubtopic(ctx, org, sub.ID))
	requireAPIError(t, svc.DeleteSubtopic(ctx, org, sub.ID), http.StatusNotFound, "subtopic_not_found")
}

func TestDNASetApproval(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()
	sub := testutil.SeedSubtopic(t, ctx, db, testutil.SeedTopic(t, ctx, db, org, "Culture"), "Feedback")
	val := testutil.SeedValue(t, ctx, db, sub, "Be candid.")

	for _, bad := range []string{"", "pending", "APPROVED", "maybe"} {
		_, err := svc.SetApproval(ctx, org, val.ID, bad)
		ae := requireAPIError(t, err, http.StatusBadRequest, "invalid_approval")
		assert.Equal(t, `approval must be "approved" or "rejected".`, ae.Error())
	}

	_, err := svc.SetApproval(ctx, uuid.New(), val.ID, types.ApprovalApproved)
	requireAPIError(t, err, http.StatusNotFound, "value_not_found")

	got, err := svc.SetApproval(ctx, org, val.ID, types.ApprovalRejected)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, got.Approval)
	assert.Equal(t, "Be candid.", got.Content)
}

func TestDNADeleteValue(t *testing.T) {
	svc, db := newDNAService(t, nil)
	ctx := context.Background()
	org := uuid.New()
	sub := testutil.SeedSubtopic(t, ctx, db, testutil.SeedTopic(t, ctx, db, org, "Culture"), "Feedback")
	val := testutil.SeedValue(t, ctx, db, sub, "Be candid.")

	requireAPIError(t, svc.DeleteValue(ctx, uuid.New(), val.ID), http.StatusNotFound, "value_not_found")
	require.NoError(t, svc.DeleteValue(ctx, org, val.ID))
	requireAPIError(t, svc.DeleteValue(ctx, org, val.ID), http.StatusNotFound, "value_not_found")
}

func TestDNASynthesizeErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{synthesis.ErrNotFound, http.StatusNotFound, "subtopic_not_found"},
		{synthesis.ErrNoRelevantContent, http.StatusUnprocessableEntity, "no_relevant_content"},
		{synthesis.ErrNoValuesExtracted, http.StatusUnprocessableEntity, "no_values_extracted"},
		{synthesis.ErrSynthesisInProgress, http.StatusConflict, "synthesis_in_progress"},
		{fmt.Errorf("%w: generate: upstream secret", synthesis.ErrSynthesisFailed), http.StatusInternalServerError, "synthesis_failed"},
		{errors.New("unexpected"), http.StatusInternalServerError, "synthesis_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			svc, _ := newDNAService(t, &fakeSynthesizer{err: tc.err})
			_, err := svc.Synthesize(context.Background(), uuid.New(), uuid.New())
			ae := requireAPIError(t, err, tc.status, tc.code)
			assert.Equal(t, synthesis.UserMessage(tc.err), ae.Error())
			assert.NotContains(t, ae.Error(), "upstream secret")
		})
	}
}

func TestDNASynthesizeReturnsCount(t *testing.T) {
	synth := &fakeSynthesizer{count: 7}
	svc, _ := newDNAService(t, synth)
	n, err := svc.Synthesize(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 1, synth.calls)
}
