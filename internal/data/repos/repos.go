package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/karibu-backend/internal/data/repos/dna"
	"github.com/yungbote/karibu-backend/internal/data/repos/documents"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo

type TopicRepo = dna.TopicRepo
type SubtopicRepo = dna.SubtopicRepo
type ValueRepo = dna.ValueRepo
type TopicPatch = dna.TopicPatch

// Repos is the set of repositories shared by services and handlers.
type Repos struct {
	Documents DocumentRepo
	Topics    TopicRepo
	Subtopics SubtopicRepo
	Values    ValueRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Documents: documents.NewDocumentRepo(db, log),
		Topics:    dna.NewTopicRepo(db, log),
		Subtopics: dna.NewSubtopicRepo(db, log),
		Values:    dna.NewValueRepo(db, log),
	}
}
