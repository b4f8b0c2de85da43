package dna

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type SubtopicRepo interface {
	Create(dbc dbctx.Context, sub *types.Subtopic) error
	GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Subtopic, error)
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Subtopic, error)
	Update(dbc dbctx.Context, orgID, id uuid.UUID, patch TopicPatch) (*types.Subtopic, error)
	SetSynthesisStatus(dbc dbctx.Context, orgID, id uuid.UUID, status string, completedAt *time.Time) error
	Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error)
}

type subtopicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubtopicRepo(db *gorm.DB, baseLog *logger.Logger) SubtopicRepo {
	return &subtopicRepo{db: db, log: baseLog.With("repo", "SubtopicRepo")}
}

func (r *subtopicRepo) Create(dbc dbctx.Context, sub *types.Subtopic) error {
	if sub == nil || sub.OrganizationID == uuid.Nil || sub.TopicID == uuid.Nil {
		return fmt.Errorf("subtopic missing organization or topic id")
	}
	return dbc.DB(r.db).Omit("Values").Create(sub).Error
}

func (r *subtopicRepo) GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Subtopic, error) {
	var out types.Subtopic
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

func (r *subtopicRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Subtopic, error) {
	var results []*types.Subtopic
	if err := dbc.DB(r.db).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *subtopicRepo) Update(dbc dbctx.Context, orgID, id uuid.UUID, patch TopicPatch) (*types.Subtopic, error) {
	updates := patch.updates()
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := dbc.DB(r.db).
			Model(&types.Subtopic{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return r.GetByID(dbc, orgID, id)
}

// SetSynthesisStatus writes synthesis_status and, when completedAt is set,
// last_synthesized_at.
func (r *subtopicRepo) SetSynthesisStatus(dbc dbctx.Context, orgID, id uuid.UUID, status string, completedAt *time.Time) error {
	updates := map[string]interface{}{
		"synthesis_status": status,
		"updated_at":       time.Now().UTC(),
	}
	if completedAt != nil {
		updates["last_synthesized_at"] = completedAt.UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.Subtopic{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("subtopic %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// Delete removes the subtopic and its values.
func (r *subtopicRepo) Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error) {
	deleted := false
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("subtopic_id = ? AND organization_id = ?", id, orgID).
			Delete(&types.Value{}).Error; err != nil {
			return err
		}
		res := txx.Where("id = ? AND organization_id = ?", id, orgID).Delete(&types.Subtopic{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
