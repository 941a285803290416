package vellum

import (
	"fmt"
	"strings"
)

// Warning is a non-fatal problem noticed while reading a document: damaged
// cross-reference data that was recovered, content operators that had to be
// skipped, and the like. Page is 1-indexed; zero means the warning concerns
// the document as a whole.
type Warning struct {
	Page    int
	Message string
}

// String renders the warning for logs.
func (w Warning) String() string {
	if w.Page > 0 {
		return fmt.Sprintf("page %d: %s", w.Page, w.Message)
	}
	return w.Message
}

// FormatWarnings joins warnings into a single semicolon-separated string.
func FormatWarnings(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	parts := make([]string, len(warnings))
	for i, w := range warnings {
		parts[i] = w.String()
	}
	return strings.Join(parts, "; ")
}
