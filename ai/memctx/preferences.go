package memctx

import (
	"context"
	"strings"
)

// preferenceMarkers are the phrases mined from the user's history.
var preferenceMarkers = []string{"i like", "i prefer"}

// UserPreferencesStrategy mines the user's whole history for explicitly
// stated preferences.
type UserPreferencesStrategy struct{}

var _ Strategy = (*UserPreferencesStrategy)(nil)

func NewUserPreferencesStrategy() *UserPreferencesStrategy {
	return &UserPreferencesStrategy{}
}

func (s *UserPreferencesStrategy) StoreKind() StoreKind { return StoreRecent }

func (s *UserPreferencesStrategy) isStrategy() {}

// BuildContext scans every entry the user owns for a preference phrase
// and keeps the matched phrase plus everything after it, at most one
// hit per entry.
func (s *UserPreferencesStrategy) BuildContext(ctx context.Context, st MemoryStore, req *Request) (Result, error) {
	if req.UserID == "" {
		return EmptyResult{}, nil
	}

	entries, err := st.FindMemoryEntriesByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var hits []string
	for _, entry := range entries {
		if pref, ok := extractPreference(entry.Content); ok {
			hits = append(hits, pref)
		}
	}
	if len(hits) == 0 {
		return EmptyResult{}, nil
	}
	return PreferencesResult{Text: "User Preferences: " + strings.Join(hits, ", ")}, nil
}

// extractPreference returns the earliest preference phrase and its
// trailing text, preserving the original casing. The match is
// case-insensitive.
func extractPreference(content string) (string, bool) {
	lower := strings.ToLower(content)
	best := -1
	for _, marker := range preferenceMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return "", false
	}
	return strings.TrimSpace(content[best:]), true
}
