package gcp

import (
	"errors"
	"testing"
)

func setBucketEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOCUMENTS_GCS_BUCKET_NAME", "karibu-documents")
	t.Setenv("STORAGE_KEY_PREFIX", "")
	t.Setenv("OBJECT_STORAGE_MODE", "")
}

func TestResolveObjectStorageConfigFromEnvDefaultGCS(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvExplicitGCS(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvExplicitEmulator(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=false got=true")
	}
}

func TestResolveObjectStorageConfigFromEnvCompatibilityFallback(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCSEmulator, cfg.Mode)
	}
	if !cfg.CompatibilityFallback {
		t.Fatalf("compatibility fallback: want=true got=false")
	}
}

func TestResolveObjectStorageConfigFromEnvInvalidMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", "s3")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	_, err := ResolveObjectStorageConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: expected error, got nil")
	}
}

func TestResolveObjectStorageConfigFromEnvMissingEmulatorHost(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	_, err := ResolveObjectStorageConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: expected error, got nil")
	}
}

func TestResolveObjectStorageConfigFromEnvInvalidEmulatorHost(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs:4443")

	_, err := ResolveObjectStorageConfigFromEnv()
	if err == nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: expected error, got nil")
	}
}

func TestResolveObjectStorageConfigFromEnvLocalDefaultsDir(t *testing.T) {
	t.Setenv("STORAGE_MODE", "local")
	t.Setenv("OBJECT_STORAGE_LOCAL_DIR", "")
	t.Setenv("DOCUMENTS_GCS_BUCKET_NAME", "")
	t.Setenv("STORAGE_KEY_PREFIX", "/uploads/")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeLocal || cfg.LocalDir != defaultLocalStorageDir {
		t.Fatalf("local config: mode=%q dir=%q", cfg.Mode, cfg.LocalDir)
	}
	if cfg.KeyPrefix != "uploads" {
		t.Fatalf("key prefix: want=%q got=%q", "uploads", cfg.KeyPrefix)
	}
}

func TestResolveObjectStorageConfigFromEnvMissingBucket(t *testing.T) {
	t.Setenv("STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("DOCUMENTS_GCS_BUCKET_NAME", "")

	_, err := ResolveObjectStorageConfigFromEnv()
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorMissingBucket {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
}

func TestResolveObjectStorageConfigFromEnvLegacyModeVariable(t *testing.T) {
	setBucketEnv(t)
	t.Setenv("STORAGE_MODE", "")
	t.Setenv("OBJECT_STORAGE_MODE", "local")
	t.Setenv("OBJECT_STORAGE_LOCAL_DIR", "/tmp/karibu")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeLocal {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeLocal, cfg.Mode)
	}
	if cfg.LocalDir != "/tmp/karibu" {
		t.Fatalf("local dir: want=%q got=%q", "/tmp/karibu", cfg.LocalDir)
	}
}
