package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/karibu-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Documents (uploads + ingestion status)
		// =========================
		&types.Document{},

		// =========================
		// DNA taxonomy + synthesized values
		// =========================
		&types.Topic{},
		&types.Subtopic{},
		&types.Value{},
	)
}
