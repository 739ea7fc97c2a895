package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// renderFeedback flattens a judge's named feedback fields into a single
// human-readable block, one "Label: value" line per field in a stable
// (alphabetical) key order so repeated runs produce byte-identical memory
// summaries for identical critiques.
func renderFeedback(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", humanizeKey(k), fields[k])
	}
	return b.String()
}

// humanizeKey turns a snake_case feedback key into Title Case for display,
// e.g. "requirement_coverage" -> "Requirement Coverage".
func humanizeKey(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
