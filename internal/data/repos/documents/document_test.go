package documents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/karibu-backend/internal/data/repos/testutil"
	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
)

func TestDocumentRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	orgA := uuid.New()
	orgB := uuid.New()

	doc := &types.Document{
		OrganizationID: orgA,
		UploadedBy:     uuid.New(),
		Filename:       "handbook.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      2048,
	}
	if err := repo.Create(dbc, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if doc.ID == uuid.Nil || doc.Status != types.DocumentStatusUploaded {
		t.Fatalf("Create: id=%s status=%s", doc.ID, doc.Status)
	}

	if got, err := repo.GetByID(dbc, orgB, doc.ID); err != nil || got != nil {
		t.Fatalf("GetByID cross-tenant: got=%v err=%v", got, err)
	}

	if err := repo.SetStorageKey(dbc, orgA, doc.ID, orgA.String()+"/"+doc.ID.String()+".pdf"); err != nil {
		t.Fatalf("SetStorageKey: %v", err)
	}
	if err := repo.SetStatus(dbc, orgA, doc.ID, types.DocumentStatusProcessing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := repo.SetStatus(dbc, orgB, doc.ID, types.DocumentStatusProcessing); err == nil {
		t.Fatalf("SetStatus cross-tenant: expected error")
	}

	diag := datatypes.JSON([]byte(`{"chunks":3}`))
	if err := repo.MarkProcessed(dbc, orgA, doc.ID, doc.ID.String()+"_chunk_0", diag); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	got, err := repo.GetByID(dbc, orgA, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: got=%v err=%v", got, err)
	}
	if got.Status != types.DocumentStatusProcessed || got.FirstPassageID == nil || *got.FirstPassageID != doc.ID.String()+"_chunk_0" {
		t.Fatalf("MarkProcessed: status=%s first=%v", got.Status, got.FirstPassageID)
	}
	if got.ProcessedAt == nil {
		t.Fatalf("MarkProcessed: processed_at not set")
	}

	if err := repo.MarkFailed(dbc, orgA, doc.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = repo.GetByID(dbc, orgA, doc.ID)
	if got.Status != types.DocumentStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "boom" {
		t.Fatalf("MarkFailed: status=%s msg=%v", got.Status, got.ErrorMessage)
	}

	if ok, err := repo.Delete(dbc, orgB, doc.ID); err != nil || ok {
		t.Fatalf("Delete cross-tenant: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Delete(dbc, orgA, doc.ID); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
}

func TestDocumentRepoListNewestFirst(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	org := uuid.New()
	first := testutil.SeedDocument(t, ctx, tx, org, "a.txt")
	second := testutil.SeedDocument(t, ctx, tx, org, "b.txt")
	testutil.SeedDocument(t, ctx, tx, uuid.New(), "other.txt")

	older := first.CreatedAt.Add(-1e9)
	if err := tx.Model(first).Update("created_at", older).Error; err != nil {
		t.Fatalf("age document: %v", err)
	}

	rows, err := repo.ListByOrganization(dbc, org)
	if err != nil || len(rows) != 2 {
		t.Fatalf("ListByOrganization: err=%v len=%d", err, len(rows))
	}
	if rows[0].ID != second.ID || rows[1].ID != first.ID {
		t.Fatalf("ListByOrganization: unexpected order %s,%s", rows[0].Filename, rows[1].Filename)
	}
}
