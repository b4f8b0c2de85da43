// Package pgvector stores passages in Postgres with the pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	pgv "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

type Config struct {
	Table     string
	Namespace string
	VectorDim int
	// UpsertBatchSize bounds rows per INSERT; Postgres allows 65535 bind
	// parameters per statement and each row binds seven.
	UpsertBatchSize int
}

const defaultUpsertBatchSize = 500

func ConfigFromEnv() Config {
	return Config{
		Table:           envutil.String("PGVECTOR_TABLE", "passage_vectors"),
		Namespace:       envutil.String("PGVECTOR_NAMESPACE", "karibu"),
		VectorDim:       envutil.Int("EMBEDDING_DIM", 1536),
		UpsertBatchSize: envutil.Int("PGVECTOR_UPSERT_BATCH_SIZE", defaultUpsertBatchSize),
	}
}

var tableNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Columns promoted out of metadata so tenant and document filters hit an index.
var columnForKey = map[string]string{
	vectorindex.MetaOrganizationID: "organization_id",
	vectorindex.MetaDocumentID:     "document_id",
}

type row struct {
	Namespace      string         `gorm:"column:namespace"`
	ID             string         `gorm:"column:id"`
	OrganizationID string         `gorm:"column:organization_id"`
	DocumentID     string         `gorm:"column:document_id"`
	Text           string         `gorm:"column:text"`
	Metadata       datatypes.JSON `gorm:"column:metadata"`
	Embedding      pgv.Vector     `gorm:"column:embedding"`
}

type scoredRow struct {
	ID       string         `gorm:"column:id"`
	Text     string         `gorm:"column:text"`
	Metadata datatypes.JSON `gorm:"column:metadata"`
	Score    float64        `gorm:"column:score"`
}

// Store is a vectorindex.Provider on a Postgres table ranked by cosine distance.
type Store struct {
	log *logger.Logger
	db  *gorm.DB
	cfg Config
}

func New(log *logger.Logger, db *gorm.DB, cfg Config) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if !tableNameRE.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid PGVECTOR_TABLE %q", cfg.Table)
	}
	if cfg.VectorDim <= 0 {
		return nil, fmt.Errorf("invalid EMBEDDING_DIM %d", cfg.VectorDim)
	}
	if cfg.UpsertBatchSize <= 0 || cfg.UpsertBatchSize > 8000 {
		cfg.UpsertBatchSize = defaultUpsertBatchSize
	}
	return &Store{log: log.With("service", "PgvectorStore"), db: db, cfg: cfg}, nil
}

// Migrate creates the extension, table and indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	t := s.cfg.Table
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			namespace text NOT NULL,
			id text NOT NULL,
			organization_id text NOT NULL,
			document_id text NOT NULL DEFAULT '',
			text text NOT NULL DEFAULT '',
			metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (namespace, id)
		)`, t, s.cfg.VectorDim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_org_doc_idx ON %s (namespace, organization_id, document_id)`, t, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, t, t),
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	s.log.Info("pgvector table ready", "table", t, "vector_dim", s.cfg.VectorDim)
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []vectorindex.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]row, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("pgvector upsert: record id required")
		}
		if len(r.Values) != s.cfg.VectorDim {
			return fmt.Errorf("pgvector upsert: record %q dimension mismatch: expected=%d got=%d", r.ID, s.cfg.VectorDim, len(r.Values))
		}
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector upsert: encode metadata: %w", err)
		}
		rows = append(rows, row{
			Namespace:      s.cfg.Namespace,
			ID:             r.ID,
			OrganizationID: fmt.Sprint(r.Metadata[vectorindex.MetaOrganizationID]),
			DocumentID:     fmt.Sprint(r.Metadata[vectorindex.MetaDocumentID]),
			Text:           r.Text,
			Metadata:       datatypes.JSON(md),
			Embedding:      pgv.NewVector(r.Values),
		})
	}
	return s.db.WithContext(ctx).
		Table(s.cfg.Table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"organization_id", "document_id", "text", "metadata", "embedding"}),
		}).
		CreateInBatches(&rows, s.cfg.UpsertBatchSize).Error
}

func (s *Store) Query(ctx context.Context, vector []float32, filter vectorindex.Filter, topK int) ([]vectorindex.Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("pgvector query: vector required")
	}
	if topK <= 0 {
		topK = 10
	}
	q := pgv.NewVector(vector)
	tx := s.db.WithContext(ctx).
		Table(s.cfg.Table).
		Select("id, text, metadata, 1 - (embedding <=> ?) AS score", q).
		Where("namespace = ?", s.cfg.Namespace)
	for _, w := range whereClauses(filter) {
		tx = tx.Where(w.sql, w.args...)
	}
	var rows []scoredRow
	err := tx.Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{q}}).
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	out := make([]vectorindex.Match, 0, len(rows))
	for _, r := range rows {
		md := map[string]any{}
		if len(r.Metadata) > 0 {
			_ = json.Unmarshal(r.Metadata, &md)
		}
		out = append(out, vectorindex.Match{ID: r.ID, Score: r.Score, Text: r.Text, Metadata: md})
	}
	return out, nil
}

func (s *Store) DeleteWhere(ctx context.Context, filter vectorindex.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	tx := s.db.WithContext(ctx).Table(s.cfg.Table).Where("namespace = ?", s.cfg.Namespace)
	for _, w := range whereClauses(filter) {
		tx = tx.Where(w.sql, w.args...)
	}
	return tx.Delete(&row{}).Error
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type where struct {
	sql  string
	args []any
}

// whereClauses maps promoted keys to columns and the rest to jsonb text lookups.
func whereClauses(filter vectorindex.Filter) []where {
	out := make([]where, 0, len(filter))
	for _, k := range filter.Keys() {
		v := fmt.Sprint(filter[k])
		if col, ok := columnForKey[k]; ok {
			out = append(out, where{sql: col + " = ?", args: []any{v}})
			continue
		}
		out = append(out, where{sql: "metadata->>? = ?", args: []any{k, v}})
	}
	return out
}
