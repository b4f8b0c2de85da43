package app

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/karibu-backend/internal/data/db"
	"github.com/yungbote/karibu-backend/internal/http/middleware"
	"github.com/yungbote/karibu-backend/internal/ingestion/chunker"
	"github.com/yungbote/karibu-backend/internal/jobs/worker"
	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/services"
	"github.com/yungbote/karibu-backend/internal/synthesis"
)

type Config struct {
	Environment     string
	Version         string
	Port            string
	LogMode         string
	DSN             string
	JWTSecret       string
	JWTAudience     string
	CORSOrigins     []string
	VectorProvider  string
	ShutdownTimeout time.Duration
	Chunker         chunker.Chunker
	Documents       services.DocumentConfig
	Worker          worker.Config
	Synthesis       synthesis.Config
}

// LoadConfig reads the process configuration from the environment. When
// CONFIG_FILE names a YAML file its top-level keys are applied first as
// defaults for variables the environment does not set.
func LoadConfig() (Config, error) {
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyConfigFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Environment:     envutil.String("APP_ENV", "development"),
		Version:         envutil.String("APP_VERSION", "dev"),
		Port:            envutil.String("PORT", "8080"),
		LogMode:         envutil.String("LOG_MODE", "development"),
		DSN:             db.DSNFromEnv(),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTAudience:     envutil.String("JWT_AUDIENCE", ""),
		CORSOrigins:     middleware.CORSOriginsFromEnv(),
		VectorProvider:  strings.ToLower(envutil.String("VECTOR_PROVIDER", "")),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		Chunker: chunker.New(
			envutil.Int("CHUNK_SIZE", chunker.DefaultSize),
			envutil.Int("CHUNK_OVERLAP", chunker.DefaultOverlap),
		),
		Documents: services.DocumentConfigFromEnv(),
		Worker:    worker.ConfigFromEnv(),
		Synthesis: synthesis.ConfigFromEnv(),
	}

	mode, err := synthesis.ParseLockMode(cfg.Synthesis.LockMode)
	if err != nil {
		return Config{}, err
	}
	cfg.Synthesis.LockMode = mode

	if cfg.VectorProvider != "" && !isKnownVectorProvider(VectorProvider(cfg.VectorProvider)) {
		return Config{}, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: cfg.VectorProvider,
			Cause:    fmt.Errorf("unsupported VECTOR_PROVIDER %q (want qdrant|pinecone|pgvector|memory)", cfg.VectorProvider),
		}
	}
	return cfg, nil
}

// applyConfigFile maps `KEY: value` pairs onto unset environment variables.
// Lists are joined with commas.
func applyConfigFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := strings.ToUpper(strings.TrimSpace(k))
		if name == "" {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, configValue(values[k])); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func configValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, configValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
