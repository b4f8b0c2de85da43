package dna

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SynthesisIdle    = "idle"
	SynthesisRunning = "running"
	SynthesisDone    = "done"
	SynthesisFailed  = "failed"
)

type Subtopic struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID        uuid.UUID `gorm:"type:uuid;not null;index" json:"topic_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Description    *string   `gorm:"column:description" json:"description"`

	SynthesisStatus   string     `gorm:"column:synthesis_status;not null;default:'idle'" json:"synthesis_status"`
	LastSynthesizedAt *time.Time `gorm:"column:last_synthesized_at" json:"last_synthesized_at"`

	Values []Value `gorm:"foreignKey:SubtopicID;references:ID;constraint:OnDelete:CASCADE" json:"values,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Subtopic) TableName() string { return "dna_subtopics" }

func (s *Subtopic) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SynthesisStatus == "" {
		s.SynthesisStatus = SynthesisIdle
	}
	return nil
}
