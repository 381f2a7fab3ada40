// Package placeholder finds and fills {{name}} variables in template text.
package placeholder

import (
	"regexp"
	"strings"
)

// pattern matches {{name}} with optional inner spaces. Names are
// letters, digits, underscores, dots and dashes.
var pattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Extract returns the variable names used in texts, deduplicated and in
// order of first occurrence. It never returns nil.
func Extract(texts ...string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, text := range texts {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if seen[name] {
				continue
			}
			seen[name] = true
			result = append(result, name)
		}
	}
	return result
}

// Apply replaces every known variable in text with its value. Unknown
// variables are left untouched so they remain visible to the user.
func Apply(text string, values map[string]string) string {
	return pattern.ReplaceAllStringFunc(text, func(match string) string {
		name := pattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
}

// Missing returns the variables in texts that values does not supply.
func Missing(values map[string]string, texts ...string) []string {
	var missing []string
	for _, name := range Extract(texts...) {
		if _, ok := values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Normalize trims names and drops blanks and duplicates.
func Normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Braced renders names in their {{name}} form.
func Braced(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "{{" + n + "}}"
	}
	return out
}
