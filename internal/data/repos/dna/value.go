package dna

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type ValueRepo interface {
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Value, error)
	ListBySubtopic(dbc dbctx.Context, orgID, subtopicID uuid.UUID) ([]*types.Value, error)
	ReplaceForSubtopic(dbc dbctx.Context, orgID, subtopicID uuid.UUID, contents []string) ([]*types.Value, error)
	SetApproval(dbc dbctx.Context, orgID, id uuid.UUID, approval string) (*types.Value, error)
	Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error)
}

type valueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewValueRepo(db *gorm.DB, baseLog *logger.Logger) ValueRepo {
	return &valueRepo{db: db, log: baseLog.With("repo", "ValueRepo")}
}

func (r *valueRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Value, error) {
	var results []*types.Value
	if err := dbc.DB(r.db).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *valueRepo) ListBySubtopic(dbc dbctx.Context, orgID, subtopicID uuid.UUID) ([]*types.Value, error) {
	var results []*types.Value
	if err := dbc.DB(r.db).
		Where("organization_id = ? AND subtopic_id = ?", orgID, subtopicID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ReplaceForSubtopic deletes the subtopic's values and inserts one pending value
// per content line, in order, inside a single transaction.
func (r *valueRepo) ReplaceForSubtopic(dbc dbctx.Context, orgID, subtopicID uuid.UUID, contents []string) ([]*types.Value, error) {
	rows := make([]*types.Value, 0, len(contents))
	// Stagger created_at so list order matches line order on coarse clocks.
	base := time.Now().UTC()
	for i, c := range contents {
		ts := base.Add(time.Duration(i) * time.Microsecond)
		rows = append(rows, &types.Value{
			ID:             uuid.New(),
			SubtopicID:     subtopicID,
			OrganizationID: orgID,
			Content:        c,
			Approval:       types.ApprovalPending,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		})
	}
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("subtopic_id = ? AND organization_id = ?", subtopicID, orgID).
			Delete(&types.Value{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return txx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *valueRepo) SetApproval(dbc dbctx.Context, orgID, id uuid.UUID, approval string) (*types.Value, error) {
	res := dbc.DB(r.db).
		Model(&types.Value{}).
		Where("id = ? AND organization_id = ?", id, orgID).
		Updates(map[string]interface{}{
			"approval":   approval,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	var out types.Value
	err := dbc.DB(r.db).Where("id = ? AND organization_id = ?", id, orgID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *valueRepo) Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error) {
	res := dbc.DB(r.db).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&types.Value{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
