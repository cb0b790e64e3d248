package conversation

import (
	"sort"
	"strings"

	"github.com/wolfman30/avito-asker/internal/forms"
)

// Summarize renders answers as "field: value" lines. Fields follow the form's
// traversal order; answers under fields the form does not know come last, sorted.
func Summarize(def *forms.Definition, answers map[string]string) string {
	if len(answers) == 0 {
		return ""
	}
	lines := make([]string, 0, len(answers))
	seen := make(map[string]bool, len(answers))
	if def != nil {
		for _, field := range def.FieldOrder() {
			value, ok := answers[field]
			if !ok {
				continue
			}
			seen[field] = true
			lines = append(lines, field+": "+value)
		}
	}

	var extra []string
	for field := range answers {
		if !seen[field] {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	for _, field := range extra {
		lines = append(lines, field+": "+answers[field])
	}
	return strings.Join(lines, "\n")
}
