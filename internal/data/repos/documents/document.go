package documents

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// DocumentRepo reads and writes documents. Every method except GetByIDUnscoped is
// scoped to an organization.
type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) error
	GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Document, error)
	GetByIDUnscoped(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Document, error)
	SetStorageKey(dbc dbctx.Context, orgID, id uuid.UUID, key string) error
	SetStatus(dbc dbctx.Context, orgID, id uuid.UUID, status string) error
	MarkProcessed(dbc dbctx.Context, orgID, id uuid.UUID, firstPassageID string, diagnostics datatypes.JSON) error
	MarkFailed(dbc dbctx.Context, orgID, id uuid.UUID, reason string) error
	// RequeueFinished moves a processed or failed document back to uploaded.
	// It reports false when the document is queued or mid-run.
	RequeueFinished(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error)
	Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) error {
	if doc == nil {
		return fmt.Errorf("nil document")
	}
	if doc.OrganizationID == uuid.Nil {
		return fmt.Errorf("document missing organization id")
	}
	if doc.Status == "" {
		doc.Status = types.DocumentStatusUploaded
	}
	return dbc.DB(r.db).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Document, error) {
	if orgID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var out types.Document
	err := dbc.DB(r.db).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDUnscoped is for operator tooling only; request paths use GetByID.
func (r *documentRepo) GetByIDUnscoped(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	var out types.Document
	err := dbc.DB(r.db).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Document, error) {
	var results []*types.Document
	if orgID == uuid.Nil {
		return results, nil
	}
	if err := dbc.DB(r.db).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) SetStorageKey(dbc dbctx.Context, orgID, id uuid.UUID, key string) error {
	return r.update(dbc, orgID, id, map[string]interface{}{"storage_key": key})
}

func (r *documentRepo) SetStatus(dbc dbctx.Context, orgID, id uuid.UUID, status string) error {
	return r.update(dbc, orgID, id, map[string]interface{}{"status": status})
}

func (r *documentRepo) MarkProcessed(dbc dbctx.Context, orgID, id uuid.UUID, firstPassageID string, diagnostics datatypes.JSON) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":           types.DocumentStatusProcessed,
		"first_passage_id": firstPassageID,
		"error_message":    nil,
		"processed_at":     now,
	}
	if len(diagnostics) > 0 {
		updates["diagnostics"] = diagnostics
	}
	return r.update(dbc, orgID, id, updates)
}

func (r *documentRepo) MarkFailed(dbc dbctx.Context, orgID, id uuid.UUID, reason string) error {
	return r.update(dbc, orgID, id, map[string]interface{}{
		"status":        types.DocumentStatusFailed,
		"error_message": reason,
	})
}

func (r *documentRepo) RequeueFinished(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error) {
	if orgID == uuid.Nil || id == uuid.Nil {
		return false, fmt.Errorf("missing ids")
	}
	res := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Where("status IN ?", []string{types.DocumentStatusProcessed, types.DocumentStatusFailed}).
		Updates(map[string]interface{}{
			"status":     types.DocumentStatusUploaded,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&types.Document{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) update(dbc dbctx.Context, orgID, id uuid.UUID, updates map[string]interface{}) error {
	if orgID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing ids")
	}
	updates["updated_at"] = time.Now().UTC()
	res := dbc.DB(r.db).
		Model(&types.Document{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
