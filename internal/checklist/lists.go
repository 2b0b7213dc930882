package checklist

import "strings"

// ParseList splits a delimiter-encoded list of Select options into its
// entries. Semicolons and newlines separate entries, so an option may contain
// a comma. Blanks and duplicates are dropped and the first-seen order is kept.
func ParseList(s string) []string {
	return cleanList(strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	}))
}

// ParseFileTypes splits a list of file extensions. Commas are accepted as
// well as semicolons and newlines.
func ParseFileTypes(s string) []string {
	return cleanList(strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n' || r == '\r'
	}))
}

// cleanList trims entries and drops blanks and duplicates.
func cleanList(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// NormalizeFileTypes lowercases extensions and strips any leading dot.
func NormalizeFileTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
