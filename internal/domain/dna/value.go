package dna

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Value is one synthesized statement for a subtopic, gated by human approval.
type Value struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubtopicID     uuid.UUID `gorm:"type:uuid;not null;index" json:"subtopic_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Content        string    `gorm:"column:content;not null" json:"content"`
	Approval       string    `gorm:"column:approval;not null;default:'pending'" json:"approval"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Value) TableName() string { return "dna_values" }

func (v *Value) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.Approval == "" {
		v.Approval = ApprovalPending
	}
	return nil
}

// ValidReviewApproval reports whether a reviewer may set approval to s.
func ValidReviewApproval(s string) bool {
	return s == ApprovalApproved || s == ApprovalRejected
}
