package app

import (
	"github.com/yungbote/karibu-backend/internal/platform/gcp"
)

type VectorProvider string

const (
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderPgvector VectorProvider = "pgvector"
	VectorProviderMemory   VectorProvider = "memory"
)

func isKnownVectorProvider(p VectorProvider) bool {
	switch p {
	case VectorProviderQdrant, VectorProviderPinecone, VectorProviderPgvector, VectorProviderMemory:
		return true
	default:
		return false
	}
}

// selectVectorProvider honors an explicit VECTOR_PROVIDER and otherwise
// pairs the vector store with the object storage mode: the emulator stack
// runs qdrant, cloud runs pinecone, local disk keeps passages in memory.
func selectVectorProvider(explicit string, storageMode gcp.ObjectStorageMode) (VectorProvider, string) {
	if explicit != "" {
		return VectorProvider(explicit), "explicit"
	}
	switch storageMode {
	case gcp.ObjectStorageModeGCSEmulator:
		return VectorProviderQdrant, "storage_mode_default"
	case gcp.ObjectStorageModeGCS:
		return VectorProviderPinecone, "storage_mode_default"
	default:
		return VectorProviderMemory, "storage_mode_default"
	}
}
