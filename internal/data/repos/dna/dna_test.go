package dna

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/karibu-backend/internal/data/repos/testutil"
	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
)

func strPtr(s string) *string { return &s }

func TestTopicRepoUpdateAndCascadeDelete(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)
	topics := NewTopicRepo(db, log)
	subtopics := NewSubtopicRepo(db, log)
	values := NewValueRepo(db, log)

	org := uuid.New()
	topic := &types.Topic{OrganizationID: org, Name: "Safety"}
	if err := topics.Create(dbc, topic); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sub := testutil.SeedSubtopic(t, ctx, tx, topic, "Procedures")
	testutil.SeedValue(t, ctx, tx, sub, "Always wear gear")

	updated, err := topics.Update(dbc, org, topic.ID, TopicPatch{Description: strPtr("Workplace safety")})
	if err != nil || updated == nil {
		t.Fatalf("Update: got=%v err=%v", updated, err)
	}
	if updated.Name != "Safety" || updated.Description == nil || *updated.Description != "Workplace safety" {
		t.Fatalf("Update: name=%q desc=%v", updated.Name, updated.Description)
	}

	if got, err := topics.Update(dbc, uuid.New(), topic.ID, TopicPatch{Name: strPtr("x")}); err != nil || got != nil {
		t.Fatalf("Update cross-tenant: got=%v err=%v", got, err)
	}

	if ok, err := topics.Delete(dbc, org, topic.ID); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if got, _ := subtopics.GetByID(dbc, org, sub.ID); got != nil {
		t.Fatalf("Delete: subtopic survived")
	}
	if rows, _ := values.ListBySubtopic(dbc, org, sub.ID); len(rows) != 0 {
		t.Fatalf("Delete: %d values survived", len(rows))
	}
}

func TestSubtopicRepoSynthesisStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewSubtopicRepo(db, testutil.Logger(t))

	org := uuid.New()
	topic := testutil.SeedTopic(t, ctx, tx, org, "Culture")
	sub := testutil.SeedSubtopic(t, ctx, tx, topic, "Feedback")

	if err := repo.SetSynthesisStatus(dbc, org, sub.ID, types.SynthesisRunning, nil); err != nil {
		t.Fatalf("SetSynthesisStatus running: %v", err)
	}
	now := time.Now().UTC()
	if err := repo.SetSynthesisStatus(dbc, org, sub.ID, types.SynthesisDone, &now); err != nil {
		t.Fatalf("SetSynthesisStatus done: %v", err)
	}
	got, err := repo.GetByID(dbc, org, sub.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got.SynthesisStatus != types.SynthesisDone || got.LastSynthesizedAt == nil {
		t.Fatalf("status=%s last=%v", got.SynthesisStatus, got.LastSynthesizedAt)
	}
	if err := repo.SetSynthesisStatus(dbc, uuid.New(), sub.ID, types.SynthesisFailed, nil); err == nil {
		t.Fatalf("SetSynthesisStatus cross-tenant: expected error")
	}
}

func TestValueRepoReplaceAndApprove(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewValueRepo(db, testutil.Logger(t))

	org := uuid.New()
	topic := testutil.SeedTopic(t, ctx, tx, org, "Safety")
	sub := testutil.SeedSubtopic(t, ctx, tx, topic, "Gear")
	old := testutil.SeedValue(t, ctx, tx, sub, "stale")

	rows, err := repo.ReplaceForSubtopic(dbc, org, sub.ID, []string{"Always wear gear", "Report incidents"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("ReplaceForSubtopic: err=%v len=%d", err, len(rows))
	}
	listed, err := repo.ListBySubtopic(dbc, org, sub.ID)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListBySubtopic: err=%v len=%d", err, len(listed))
	}
	if listed[0].Content != "Always wear gear" || listed[1].Content != "Report incidents" {
		t.Fatalf("order not preserved: %q, %q", listed[0].Content, listed[1].Content)
	}
	for _, v := range listed {
		if v.ID == old.ID {
			t.Fatalf("old value not replaced")
		}
		if v.Approval != types.ApprovalPending || v.OrganizationID != org {
			t.Fatalf("value approval=%s org=%s", v.Approval, v.OrganizationID)
		}
	}

	approved, err := repo.SetApproval(dbc, org, listed[0].ID, types.ApprovalApproved)
	if err != nil || approved == nil || approved.Approval != types.ApprovalApproved {
		t.Fatalf("SetApproval: got=%v err=%v", approved, err)
	}
	rejected, err := repo.SetApproval(dbc, org, listed[0].ID, types.ApprovalRejected)
	if err != nil || rejected == nil || rejected.Approval != types.ApprovalRejected {
		t.Fatalf("SetApproval re-review: got=%v err=%v", rejected, err)
	}
	if got, err := repo.SetApproval(dbc, uuid.New(), listed[0].ID, types.ApprovalApproved); err != nil || got != nil {
		t.Fatalf("SetApproval cross-tenant: got=%v err=%v", got, err)
	}

	if ok, err := repo.Delete(dbc, uuid.New(), listed[1].ID); err != nil || ok {
		t.Fatalf("Delete cross-tenant: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Delete(dbc, org, listed[1].ID); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
}
