package vectorindex

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	EmbedOne(ctx context.Context, input string) ([]float32, error)
}

// Passage is one indexed chunk of a document.
type Passage struct {
	ID             string
	DocumentID     uuid.UUID
	OrganizationID uuid.UUID
	Filename       string
	ChunkIndex     int
	Text           string
	Vector         []float32
	AddedAt        time.Time
}

// PassageID is the stable id of chunk i of a document.
func PassageID(documentID uuid.UUID, i int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, i)
}

// Index is the tenant-scoped passage index. Every read and delete carries
// the organization filter.
type Index struct {
	log      *logger.Logger
	provider Provider
	embedder Embedder
}

func New(log *logger.Logger, provider Provider, embedder Embedder) (*Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if provider == nil {
		return nil, fmt.Errorf("vector provider required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	return &Index{
		log:      log.With("component", "VectorIndex"),
		provider: provider,
		embedder: embedder,
	}, nil
}

// AddPassages upserts pre-embedded passages.
func (x *Index) AddPassages(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}
	records := make([]Record, 0, len(passages))
	for _, p := range passages {
		if p.OrganizationID == uuid.Nil {
			return fmt.Errorf("passage %q: organization id required", p.ID)
		}
		if len(p.Vector) == 0 {
			return fmt.Errorf("passage %q: vector required", p.ID)
		}
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = PassageID(p.DocumentID, p.ChunkIndex)
		}
		addedAt := p.AddedAt
		if addedAt.IsZero() {
			addedAt = time.Now().UTC()
		}
		records = append(records, Record{
			ID:     id,
			Values: p.Vector,
			Text:   p.Text,
			Metadata: map[string]any{
				MetaDocumentID:     p.DocumentID.String(),
				MetaOrganizationID: p.OrganizationID.String(),
				MetaFilename:       p.Filename,
				MetaChunkIndex:     p.ChunkIndex,
				MetaAddedAt:        addedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	if err := x.provider.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert passages: %w", err)
	}
	return nil
}

// Query embeds text and returns the topK nearest passages of one tenant.
func (x *Index) Query(ctx context.Context, organizationID uuid.UUID, text string, topK int) ([]Match, error) {
	if organizationID == uuid.Nil {
		return nil, fmt.Errorf("organization id required")
	}
	if topK <= 0 {
		topK = 10
	}
	vec, err := x.embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := x.provider.Query(ctx, vec, Filter{MetaOrganizationID: organizationID.String()}, topK)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	return matches, nil
}

// DeleteByDocument removes every passage of a document. Deleting a document
// with no passages is not an error.
func (x *Index) DeleteByDocument(ctx context.Context, organizationID, documentID uuid.UUID) error {
	if organizationID == uuid.Nil || documentID == uuid.Nil {
		return fmt.Errorf("organization id and document id required")
	}
	err := x.provider.DeleteWhere(ctx, Filter{
		MetaOrganizationID: organizationID.String(),
		MetaDocumentID:     documentID.String(),
	})
	if err != nil {
		return fmt.Errorf("delete passages: %w", err)
	}
	return nil
}

func (x *Index) Ping(ctx context.Context) error {
	return x.provider.Ping(ctx)
}

// Texts returns the passage texts of matches in rank order.
func Texts(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Text)
	}
	return out
}
