package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

const lookupChunkSize = 500

// existingLowerValues bulk-selects which of values already exist in column,
// compared case-insensitively. Keys of the result are lowercased.
func existingLowerValues(ctx context.Context, db *gorm.DB, model interface{}, column string, values []string) (map[string]bool, error) {
	keys := uniqueLower(values)
	found := make(map[string]bool, len(keys))

	for start := 0; start < len(keys); start += lookupChunkSize {
		end := start + lookupChunkSize
		if end > len(keys) {
			end = len(keys)
		}

		var matches []string
		err := db.WithContext(ctx).
			Model(model).
			Where("LOWER("+column+") IN ?", keys[start:end]).
			Pluck("LOWER("+column+")", &matches).Error
		if err != nil {
			return nil, err
		}

		for _, match := range matches {
			found[match] = true
		}
	}

	return found, nil
}

func uniqueLower(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return result
}
