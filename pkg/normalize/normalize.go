// Package normalize cleans raw key phrases before retrieval: trimming,
// length capping, and duplicate removal. This stage never aborts the
// pipeline; at worst it returns a best-effort filtered version of the
// input.
package normalize

import (
	"strings"
	"unicode"

	"github.com/recallai/recall/pkg/utils"
)

// MaxPhraseLength caps each phrase after trimming.
const MaxPhraseLength = 100

// Phrases cleans the raw list: whitespace is trimmed and collapsed, casing
// is folded so cache keys stay stable across requests, phrases are capped
// at MaxPhraseLength runes, empties are dropped, and duplicates keep their
// first occurrence.
func Phrases(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, phrase := range raw {
		cleaned := normalizeOne(phrase)
		if cleaned == "" {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// PhrasesSafe is Phrases behind a panic guard: a failure mid-list falls
// back to best-effort pass-through filtering of the original input rather
// than aborting the stage.
func PhrasesSafe(raw []string) []string {
	var result []string
	func() {
		defer utils.RecoverWithCallback(func(error) {
			result = fallback(raw)
		})
		result = Phrases(raw)
	}()
	return result
}

func normalizeOne(phrase string) string {
	cleaned := strings.ToLower(strings.TrimSpace(phrase))
	if cleaned == "" {
		return ""
	}

	// Collapse internal whitespace runs to single spaces.
	var b strings.Builder
	b.Grow(len(cleaned))
	inSpace := false
	for _, r := range cleaned {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	cleaned = b.String()

	runes := []rune(cleaned)
	if len(runes) > MaxPhraseLength {
		cleaned = strings.TrimSpace(string(runes[:MaxPhraseLength]))
	}
	return cleaned
}

// fallback drops only empty strings, preserving everything else as-is.
func fallback(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
