package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// Document is an uploaded source file owned by an organization. Its status is
// driven by the ingestion pipeline; FirstPassageID points at the first indexed
// passage once processing succeeds.
type Document struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	UploadedBy     uuid.UUID `gorm:"type:uuid;not null;index" json:"uploaded_by"`

	Filename   string `gorm:"column:filename;not null" json:"filename"`
	StorageKey string `gorm:"column:storage_key;not null;default:''" json:"storage_key"`
	MimeType   string `gorm:"column:mime_type;not null" json:"mime_type"`
	SizeBytes  int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	Status     string `gorm:"column:status;not null;default:'uploaded';index" json:"status"`

	FirstPassageID *string    `gorm:"column:first_passage_id" json:"first_passage_id,omitempty"`
	ErrorMessage   *string    `gorm:"column:error_message" json:"error_message,omitempty"`
	ProcessedAt    *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`

	// Extraction stats from the last successful run (format, chars, chunks).
	Diagnostics datatypes.JSON `gorm:"column:diagnostics;type:jsonb" json:"diagnostics,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
