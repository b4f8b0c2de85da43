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

// TopicPatch carries an optional rename and an optional description change.
type TopicPatch struct {
	Name        *string
	Description *string
}

func (p TopicPatch) updates() map[string]interface{} {
	updates := map[string]interface{}{}
	if p.Name != nil {
		updates["name"] = *p.Name
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	return updates
}

type TopicRepo interface {
	Create(dbc dbctx.Context, topic *types.Topic) error
	GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Topic, error)
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Topic, error)
	Update(dbc dbctx.Context, orgID, id uuid.UUID, patch TopicPatch) (*types.Topic, error)
	Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error)
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return &topicRepo{db: db, log: baseLog.With("repo", "TopicRepo")}
}

func (r *topicRepo) Create(dbc dbctx.Context, topic *types.Topic) error {
	if topic == nil || topic.OrganizationID == uuid.Nil {
		return fmt.Errorf("topic missing organization id")
	}
	return dbc.DB(r.db).Omit("Subtopics").Create(topic).Error
}

func (r *topicRepo) GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Topic, error) {
	var out types.Topic
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

func (r *topicRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.Topic, error) {
	var results []*types.Topic
	if err := dbc.DB(r.db).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *topicRepo) Update(dbc dbctx.Context, orgID, id uuid.UUID, patch TopicPatch) (*types.Topic, error) {
	updates := patch.updates()
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		res := dbc.DB(r.db).
			Model(&types.Topic{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
	}
	return r.GetByID(dbc, orgID, id)
}

// Delete removes the topic with its subtopics and their values.
func (r *topicRepo) Delete(dbc dbctx.Context, orgID, id uuid.UUID) (bool, error) {
	deleted := false
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var subIDs []uuid.UUID
		if err := txx.Model(&types.Subtopic{}).
			Where("topic_id = ? AND organization_id = ?", id, orgID).
			Pluck("id", &subIDs).Error; err != nil {
			return err
		}
		if len(subIDs) > 0 {
			if err := txx.Where("organization_id = ? AND subtopic_id IN ?", orgID, subIDs).
				Delete(&types.Value{}).Error; err != nil {
				return err
			}
		}
		if err := txx.Where("topic_id = ? AND organization_id = ?", id, orgID).
			Delete(&types.Subtopic{}).Error; err != nil {
			return err
		}
		res := txx.Where("id = ? AND organization_id = ?", id, orgID).Delete(&types.Topic{})
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
