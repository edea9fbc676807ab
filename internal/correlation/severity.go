package correlation

import "strings"

// criticalKeywords is the fixed severity keyword list recovered from
// incidents.py's _severity_from_medoid (the version that includes
// "timeout" — environments.py's copy omits it, but spec.md standardizes on
// the superset across every severity call site).
var criticalKeywords = []string{
	"failed", "error", "critical", "i/o error", "out of memory", "servfail", "timeout",
}

// severityFromMedoid classifies a cluster's medoid document as "critical"
// or "warning" by keyword match.
func severityFromMedoid(medoid string) string {
	lower := strings.ToLower(medoid)
	for _, kw := range criticalKeywords {
		if strings.Contains(lower, kw) {
			return "critical"
		}
	}
	return "warning"
}

// SeverityFromMedoid exports severityFromMedoid for use by internal/query.
func SeverityFromMedoid(medoid string) string { return severityFromMedoid(medoid) }
