package qdrant

import (
	"fmt"

	"github.com/yungbote/karibu-backend/internal/vectorindex"
)

// buildFilter turns a metadata equality filter into a Qdrant "must" filter
// that is always pinned to the store's namespace.
func buildFilter(namespace string, filter vectorindex.Filter) (map[string]any, error) {
	must := []any{matchCondition(payloadNamespaceKey, namespace)}
	for _, key := range filter.Keys() {
		value, ok := toScalarValue(filter[key])
		if !ok {
			return nil, opErr(
				"filter_translate",
				OperationErrorUnsupportedFilter,
				fmt.Sprintf("field %q expects a scalar value, got %T", key, filter[key]),
				nil,
			)
		}
		must = append(must, matchCondition(key, value))
	}
	return map[string]any{"must": must}, nil
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key": key,
		"match": map[string]any{
			"value": value,
		},
	}
}

func toScalarValue(value any) (any, bool) {
	switch typed := value.(type) {
	case string, bool, int64, float64:
		return typed, true
	case int:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case float32:
		return float64(typed), true
	default:
		return nil, false
	}
}
