package storage

// Sort keys accepted by list reads. The set is closed; raw request input never
// reaches SQL.
const (
	SortCreatedAt     = "created_at"
	SortCreatedAtDesc = "-created_at"
	SortUpdatedAt     = "updated_at"
	SortUpdatedAtDesc = "-updated_at"
	SortPriority      = "priority"
	SortUrgency       = "urgency"
	SortUsageLevel    = "usage_level"
	SortUsageCount    = "usage_count"
	SortDueAt         = "due_at"
)

// DefaultSort applies when a list read specifies no sort key.
const DefaultSort = SortUpdatedAtDesc

var sortKeys = map[string]struct{}{
	SortCreatedAt:     {},
	SortCreatedAtDesc: {},
	SortUpdatedAt:     {},
	SortUpdatedAtDesc: {},
	SortPriority:      {},
	SortUrgency:       {},
	SortUsageLevel:    {},
	SortUsageCount:    {},
	SortDueAt:         {},
}

// ParseSort validates a raw sort key against the allow-list. Empty input
// resolves to DefaultSort; unknown keys are rejected.
func ParseSort(raw string) (string, bool) {
	if raw == "" {
		return DefaultSort, true
	}
	if _, ok := sortKeys[raw]; !ok {
		return "", false
	}
	return raw, true
}
