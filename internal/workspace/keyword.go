package workspace

import "strings"

// TrackPredicate decides whether an execution should track output
// files, based on string-contains checks over the submitted code. This
// is a heuristic, not a parser: false positives and negatives are
// expected and acceptable.
type TrackPredicate struct {
	FormatKeywords []string
	SaveKeywords   []string
}

// DefaultPredicate matches code that both mentions a tracked output
// format and shows intent to save something.
func DefaultPredicate() TrackPredicate {
	return TrackPredicate{
		FormatKeywords: []string{"excel", "csv", "pdf", ".xlsx", ".xls", ".csv", ".pdf"},
		SaveKeywords:   []string{"save", "export", "write", "to_excel", "to_csv", "savefig"},
	}
}

// ShouldTrack reports whether code contains at least one format
// keyword and at least one save keyword (case-insensitive).
func (p TrackPredicate) ShouldTrack(code string) bool {
	if code == "" {
		return false
	}
	lower := strings.ToLower(code)
	return containsAny(lower, p.FormatKeywords) && containsAny(lower, p.SaveKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
