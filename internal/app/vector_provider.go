package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/karibu-backend/internal/platform/logger"
	"github.com/yungbote/karibu-backend/internal/platform/memvector"
	"github.com/yungbote/karibu-backend/internal/platform/pgvector"
	"github.com/yungbote/karibu-backend/internal/platform/pinecone"
	"github.com/yungbote/karibu-backend/internal/platform/qdrant"
	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

var (
	newPineconeClient      = pinecone.New
	newPineconeVectorStore = func(ctx context.Context, log *logger.Logger, pc pinecone.Client, cfg pinecone.StoreConfig) (vectorindex.Provider, error) {
		return pinecone.NewVectorStore(ctx, log, pc, cfg)
	}
	newQdrantVectorStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (vectorindex.Provider, error) {
		return qdrant.NewVectorStore(ctx, log, cfg)
	}
	newPgvectorStore = func(ctx context.Context, log *logger.Logger, db *gorm.DB, cfg pgvector.Config) (vectorindex.Provider, error) {
		s, err := pgvector.New(log, db, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider       VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL      VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL      VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl     VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorMissingQdrantVector   VectorProviderBootstrapErrorCode = "missing_qdrant_vector_dim"
	VectorProviderBootstrapErrorInvalidQdrantVector   VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorQdrantConfigFailed    VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorMissingPineconeAPIKey VectorProviderBootstrapErrorCode = "missing_pinecone_api_key"
	VectorProviderBootstrapErrorMissingDatabase       VectorProviderBootstrapErrorCode = "missing_database"
	VectorProviderBootstrapErrorConnectFailed         VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed    VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf(
		"vector provider bootstrap failed (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStoreProvider builds the passage store named by provider. The
// result is wrapped with operation metrics.
func resolveVectorStoreProvider(
	ctx context.Context,
	log *logger.Logger,
	provider VectorProvider,
	modeSource string,
	db *gorm.DB,
) (vectorindex.Provider, error) {
	name := string(provider)
	fail := func(err error) (vectorindex.Provider, error) {
		classified := classifyVectorProviderBootstrapError(name, err)
		log.Error(
			"Vector store provider bootstrap failed",
			"provider", name,
			"provider_mode_source", modeSource,
			"error_code", vectorProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	var (
		store vectorindex.Provider
		err   error
	)
	switch provider {
	case VectorProviderQdrant:
		qcfg, cfgErr := qdrant.ResolveConfigFromEnv()
		if cfgErr != nil {
			return fail(cfgErr)
		}
		log.Info(
			"Selecting vector store provider",
			"provider", name,
			"provider_mode_source", modeSource,
			"qdrant_url", qcfg.URL,
			"qdrant_collection", qcfg.Collection,
			"qdrant_namespace", qcfg.Namespace,
			"qdrant_vector_dim", qcfg.VectorDim,
		)
		store, err = newQdrantVectorStore(ctx, log, qcfg)

	case VectorProviderPinecone:
		apiKey := strings.TrimSpace(os.Getenv("PINECONE_API_KEY"))
		if apiKey == "" {
			return fail(&VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingPineconeAPIKey,
				Provider: name,
				Cause:    errors.New("PINECONE_API_KEY is required"),
			})
		}
		scfg := pinecone.StoreConfigFromEnv()
		log.Info(
			"Selecting vector store provider",
			"provider", name,
			"provider_mode_source", modeSource,
			"pinecone_index", scfg.IndexName,
			"pinecone_namespace", scfg.Namespace,
		)
		pc, clientErr := newPineconeClient(log, pinecone.Config{
			APIKey:     apiKey,
			APIVersion: strings.TrimSpace(os.Getenv("PINECONE_API_VERSION")),
			BaseURL:    strings.TrimSpace(os.Getenv("PINECONE_BASE_URL")),
			Timeout:    30 * time.Second,
		})
		if clientErr != nil {
			return fail(clientErr)
		}
		store, err = newPineconeVectorStore(ctx, log, pc, scfg)

	case VectorProviderPgvector:
		if db == nil {
			return fail(&VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingDatabase,
				Provider: name,
				Cause:    errors.New("pgvector requires a database connection"),
			})
		}
		pcfg := pgvector.ConfigFromEnv()
		log.Info(
			"Selecting vector store provider",
			"provider", name,
			"provider_mode_source", modeSource,
			"pgvector_table", pcfg.Table,
			"pgvector_namespace", pcfg.Namespace,
			"vector_dim", pcfg.VectorDim,
		)
		store, err = newPgvectorStore(ctx, log, db, pcfg)

	case VectorProviderMemory:
		log.Warn("Using in-memory vector store; passages are lost on restart", "provider_mode_source", modeSource)
		store = memvector.New()

	default:
		err := &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: name,
			Cause:    fmt.Errorf("unsupported vector provider %q", name),
		}
		log.Error(
			"Vector store provider selection failed",
			"provider", name,
			"provider_mode_source", modeSource,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}
	if err != nil {
		return fail(err)
	}
	return vectorindex.Instrument(name, store), nil
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		return bootstrapErr
	}
	wrap := func(code VectorProviderBootstrapErrorCode) error {
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			return wrap(VectorProviderBootstrapErrorMissingQdrantURL)
		case qdrant.ConfigErrorInvalidURL:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantURL)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(VectorProviderBootstrapErrorMissingQdrantColl)
		case qdrant.ConfigErrorMissingVectorDim:
			return wrap(VectorProviderBootstrapErrorMissingQdrantVector)
		case qdrant.ConfigErrorInvalidVectorDim:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantVector)
		default:
			return wrap(VectorProviderBootstrapErrorQdrantConfigFailed)
		}
	}

	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}

	return wrap(VectorProviderBootstrapErrorProviderInitFailed)
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
