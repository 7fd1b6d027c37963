package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes   = regexp.MustCompile(`["'` + "`" + `«»“”]`)
	reTrailing = regexp.MustCompile(`[:*#]+$`)
	reSpaces   = regexp.MustCompile(`\s+`)
)

// NormalizeLabel folds a sheet or cell label into the form used for all
// structural comparisons: lowercase, punctuation-stripped, single spaces.
func NormalizeLabel(input string) string {
	s := strings.ToLower(input)
	s = strings.ReplaceAll(s, " ", " ")
	repl := strings.NewReplacer("–", "-", "—", "-", "_", " ", "/", " ", "(", " ", ")", " ")
	s = repl.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reTrailing.ReplaceAllString(strings.TrimSpace(s), "")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func Tokenize(input string) []string {
	norm := NormalizeLabel(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, ".,;-")
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// FirstWords returns the first n words of the normalized label joined by
// single spaces, or the whole label when it has fewer words.
func FirstWords(input string, n int) string {
	parts := strings.Split(NormalizeLabel(input), " ")
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.Join(parts, " ")
}

func LongestCommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, item := range items[1:] {
		for !strings.HasPrefix(item, prefix) {
			if prefix == "" {
				return ""
			}
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }

func IntPtr(i int) *int { return &i }
