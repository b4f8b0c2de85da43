package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/karibu-backend/internal/domain"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID uuid.UUID, filename string) *types.Document {
	tb.Helper()
	d := &types.Document{
		OrganizationID: orgID,
		UploadedBy:     uuid.New(),
		Filename:       filename,
		StorageKey:     orgID.String() + "/" + filename,
		MimeType:       "text/plain",
		SizeBytes:      10,
		Status:         types.DocumentStatusUploaded,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedTopic(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID uuid.UUID, name string) *types.Topic {
	tb.Helper()
	t := &types.Topic{OrganizationID: orgID, Name: name}
	if err := tx.WithContext(ctx).Omit("Subtopics").Create(t).Error; err != nil {
		tb.Fatalf("seed topic: %v", err)
	}
	return t
}

func SeedSubtopic(tb testing.TB, ctx context.Context, tx *gorm.DB, topic *types.Topic, name string) *types.Subtopic {
	tb.Helper()
	s := &types.Subtopic{
		TopicID:         topic.ID,
		OrganizationID:  topic.OrganizationID,
		Name:            name,
		SynthesisStatus: types.SynthesisIdle,
	}
	if err := tx.WithContext(ctx).Omit("Values").Create(s).Error; err != nil {
		tb.Fatalf("seed subtopic: %v", err)
	}
	return s
}

func SeedValue(tb testing.TB, ctx context.Context, tx *gorm.DB, sub *types.Subtopic, content string) *types.Value {
	tb.Helper()
	v := &types.Value{
		SubtopicID:     sub.ID,
		OrganizationID: sub.OrganizationID,
		Content:        content,
		Approval:       types.ApprovalPending,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed value: %v", err)
	}
	return v
}
