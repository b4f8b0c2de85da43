package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/karibu-backend/internal/data/repos"
	types "github.com/yungbote/karibu-backend/internal/domain"
	"github.com/yungbote/karibu-backend/internal/observability"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/dbctx"
	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

type Config struct {
	MinValues        int
	MaxValues        int
	MaxWordsPerValue int
	TopK             int
	Model            string
	LockMode         string
}

func ConfigFromEnv() Config {
	return Config{
		MinValues:        envutil.Int("DNA_SYNTHESIS_MIN_VALUES", 5),
		MaxValues:        envutil.Int("DNA_SYNTHESIS_MAX_VALUES", 10),
		MaxWordsPerValue: envutil.Int("DNA_SYNTHESIS_MAX_WORDS_PER_VALUE", 50),
		TopK:             envutil.Int("DNA_SYNTHESIS_TOP_K", 10),
		Model:            envutil.String("DNA_SYNTHESIS_MODEL", "gpt-4o"),
		LockMode:         envutil.String("DNA_SYNTHESIS_LOCK", LockNone),
	}
}

func (c Config) normalized() Config {
	if c.MinValues < 1 {
		c.MinValues = 5
	}
	if c.MaxValues < c.MinValues {
		c.MaxValues = c.MinValues
	}
	if c.MaxWordsPerValue < 1 {
		c.MaxWordsPerValue = 50
	}
	if c.TopK < 1 {
		c.TopK = 10
	}
	return c
}

// Retriever returns the passages of one tenant nearest to a query.
type Retriever interface {
	Query(ctx context.Context, organizationID uuid.UUID, text string, topK int) ([]vectorindex.Match, error)
}

type Completer interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

type Deps struct {
	Log       *logger.Logger
	DB        *gorm.DB
	Topics    repos.TopicRepo
	Subtopics repos.SubtopicRepo
	Values    repos.ValueRepo
	Retriever Retriever
	Completer Completer
	// Locker guards one subtopic per run. Nil means no lock.
	Locker Locker
}

type Result struct {
	ValueCount int
	Values     []*types.Value
}

// Engine turns the indexed passages of a tenant into pending value
// statements for one subtopic.
type Engine struct {
	log       *logger.Logger
	db        *gorm.DB
	cfg       Config
	topics    repos.TopicRepo
	subtopics repos.SubtopicRepo
	values    repos.ValueRepo
	retriever Retriever
	completer Completer
	locker    Locker
}

func New(d Deps, cfg Config) (*Engine, error) {
	switch {
	case d.Log == nil:
		return nil, fmt.Errorf("logger required")
	case d.DB == nil:
		return nil, fmt.Errorf("db required")
	case d.Topics == nil || d.Subtopics == nil || d.Values == nil:
		return nil, fmt.Errorf("dna repos required")
	case d.Retriever == nil:
		return nil, fmt.Errorf("retriever required")
	case d.Completer == nil:
		return nil, fmt.Errorf("completer required")
	}
	locker := d.Locker
	if locker == nil {
		locker = NoLock()
	}
	return &Engine{
		log:       d.Log.With("component", "SynthesisEngine"),
		db:        d.DB,
		cfg:       cfg.normalized(),
		topics:    d.Topics,
		subtopics: d.Subtopics,
		values:    d.Values,
		retriever: d.Retriever,
		completer: d.Completer,
		locker:    locker,
	}, nil
}

// Synthesize regenerates the values of a subtopic from the tenant's
// documents. Errors are one of the package sentinels; ErrSynthesisFailed
// wraps the logged cause.
func (e *Engine) Synthesize(ctx context.Context, subtopicID, organizationID uuid.UUID) (res *Result, err error) {
	ctx = ctxutil.Default(ctx)
	start := time.Now()
	log := e.log.WithContext(ctx).With("subtopic_id", subtopicID, "organization_id", organizationID)

	ctx, span := observability.StartSpan(ctx, "synthesis.synthesize",
		attribute.String("subtopic.id", subtopicID.String()),
	)
	defer func() {
		observability.EndSpan(span, err)
		count := 0
		if res != nil {
			count = res.ValueCount
		}
		observability.Current().ObserveSynthesis(outcomeOf(err), time.Since(start), count)
	}()

	dbc := dbctx.Of(ctx)
	sub, err := e.subtopics.GetByID(dbc, organizationID, subtopicID)
	if err != nil {
		log.Error("Failed to load subtopic", "error", err)
		return nil, fmt.Errorf("%w: load subtopic: %v", ErrSynthesisFailed, err)
	}
	if sub == nil {
		return nil, ErrNotFound
	}

	release, ok, lerr := e.locker.TryLock(ctx, "dna_synthesis:"+sub.ID.String())
	switch {
	case lerr != nil:
		log.Warn("Synthesis lock unavailable; continuing unlocked", "error", lerr)
	case !ok:
		return nil, ErrSynthesisInProgress
	default:
		defer release()
	}

	topicName := ""
	topic, err := e.topics.GetByID(dbc, organizationID, sub.TopicID)
	if err != nil {
		log.Error("Failed to load parent topic", "error", err)
		return nil, fmt.Errorf("%w: load topic: %v", ErrSynthesisFailed, err)
	}
	if topic != nil {
		topicName = topic.Name
	}

	query := strings.TrimSpace(topicName + " " + sub.Name)
	matches, err := e.retriever.Query(ctx, organizationID, query, e.cfg.TopK)
	if err != nil {
		log.Error("Passage retrieval failed", "error", err)
		return nil, fmt.Errorf("%w: retrieve: %v", ErrSynthesisFailed, err)
	}
	excerpts := nonEmptyTexts(matches)
	if len(excerpts) == 0 {
		log.Info("No relevant passages for subtopic", "query", query)
		return nil, ErrNoRelevantContent
	}

	if err := e.subtopics.SetSynthesisStatus(dbc, organizationID, sub.ID, types.SynthesisRunning, nil); err != nil {
		log.Error("Failed to mark synthesis running", "error", err)
		e.markFailed(ctx, log, organizationID, sub.ID)
		return nil, fmt.Errorf("%w: set running: %v", ErrSynthesisFailed, err)
	}

	description := ""
	if sub.Description != nil {
		description = *sub.Description
	}
	system, user := BuildPrompt(PromptInput{
		Topic:       topicName,
		Subtopic:    sub.Name,
		Description: description,
		Excerpts:    excerpts,
		MinValues:   e.cfg.MinValues,
		MaxValues:   e.cfg.MaxValues,
		MaxWords:    e.cfg.MaxWordsPerValue,
	})

	text, err := e.completer.GenerateText(ctx, system, user)
	if err != nil {
		log.Error("DNA synthesis failed", "stage", "generate", "error", err)
		e.markFailed(ctx, log, organizationID, sub.ID)
		return nil, fmt.Errorf("%w: generate: %v", ErrSynthesisFailed, err)
	}

	lines := ParseValues(text)
	if len(lines) == 0 {
		log.Info("Model returned no value statements")
		e.markFailed(ctx, log, organizationID, sub.ID)
		return nil, ErrNoValuesExtracted
	}

	var values []*types.Value
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		var rerr error
		values, rerr = e.values.ReplaceForSubtopic(txc, organizationID, sub.ID, lines)
		if rerr != nil {
			return rerr
		}
		now := time.Now().UTC()
		return e.subtopics.SetSynthesisStatus(txc, organizationID, sub.ID, types.SynthesisDone, &now)
	})
	if err != nil {
		log.Error("DNA synthesis failed", "stage", "persist", "error", err)
		e.markFailed(ctx, log, organizationID, sub.ID)
		return nil, fmt.Errorf("%w: persist: %v", ErrSynthesisFailed, err)
	}

	log.Info("DNA synthesis complete", "value_count", len(values), "duration_ms", time.Since(start).Milliseconds())
	return &Result{ValueCount: len(values), Values: values}, nil
}

func (e *Engine) markFailed(ctx context.Context, log *logger.Logger, organizationID, subtopicID uuid.UUID) {
	if err := e.subtopics.SetSynthesisStatus(dbctx.Of(ctxutil.Detached(ctx)), organizationID, subtopicID, types.SynthesisFailed, nil); err != nil {
		log.Error("Failed to mark synthesis failed", "error", err)
	}
}

func nonEmptyTexts(matches []vectorindex.Match) []string {
	out := make([]string, 0, len(matches))
	for _, t := range vectorindex.Texts(matches) {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "done"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoRelevantContent):
		return "no_content"
	case errors.Is(err, ErrNoValuesExtracted):
		return "no_values"
	case errors.Is(err, ErrSynthesisInProgress):
		return "conflict"
	default:
		return "failed"
	}
}
