// Package moderation masks forbidden words in chat bodies before they
// are persisted or relayed.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Moderator struct {
	matcher  *goahocorasick.Machine
	maskRune rune
}

// charMapping tracks, for every rune kept in the normalized text, the
// index of the rune it came from in the original string.
type charMapping struct {
	normalized []rune
	sourceIdx  []int
}

// NewModerator builds the Aho-Corasick automaton over the normalized
// word list. An empty list yields a pass-through moderator.
func NewModerator(words []string, maskRune rune) (Moderator, error) {
	if len(words) == 0 {
		return Moderator{maskRune: maskRune}, nil
	}
	patterns := make([][]rune, len(words))
	for i, word := range words {
		patterns[i] = normalizeRunes([]rune(word))
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: machine, maskRune: maskRune}, nil
}

func (m Moderator) Enabled() bool {
	return m.matcher != nil
}

// Censor masks every forbidden span in the original text, preserving
// spacing and punctuation, and reports the normalized words it hit.
func (m Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil {
		return original, nil
	}
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}

	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original, nil
	}

	sourceRunes := []rune(original)
	var found []string
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.sourceIdx) {
			continue
		}
		found = append(found, string(span.Word))

		from := mapping.sourceIdx[start]
		to := mapping.sourceIdx[end-1] + 1
		for i := from; i < to; i++ {
			sourceRunes[i] = m.maskRune
		}
	}
	return string(sourceRunes), found
}

// normalize lowercases, folds leet substitutions and drops noise
// runes, remembering where each kept rune came from.
func normalize(input string) charMapping {
	sourceRunes := []rune(input)
	mapping := charMapping{
		normalized: make([]rune, 0, len(sourceRunes)),
		sourceIdx:  make([]int, 0, len(sourceRunes)),
	}
	for i, r := range sourceRunes {
		clean := foldRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.sourceIdx = append(mapping.sourceIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := foldRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// foldRune maps common leet-speak characters back to their alphabet
// counterparts so "sh1t" matches "shit".
func foldRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
