package chat

import (
	"slices"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

const censorMask = '*'

// Censor masks configured words in chat bodies. A nil Censor leaves text
// untouched.
type Censor struct {
	matcher *goahocorasick.Machine
}

type runeMapping struct {
	normalized []rune
	origIdx    []int
}

// NewCensor builds the matcher for words. Blank entries are ignored; an
// empty list yields a nil Censor.
func NewCensor(words []string) (*Censor, error) {
	normalized := lo.Uniq(lo.FilterMap(words, func(word string, _ int) (string, bool) {
		pattern := string(normalizeRunes([]rune(word)))
		return pattern, pattern != ""
	}))
	if len(normalized) == 0 {
		return nil, nil
	}
	// the double-array trie underneath wants sorted, unique keys
	slices.Sort(normalized)
	patterns := lo.Map(normalized, func(word string, _ int) []rune {
		return []rune(word)
	})

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{matcher: m}, nil
}

// Apply replaces every matched word in text with mask runes, keeping the
// spacing and punctuation around it. A match inside a longer word is left
// alone.
func (c *Censor) Apply(text string) string {
	if c == nil || text == "" {
		return text
	}
	mapping := mapRunes(text)
	if len(mapping.normalized) == 0 {
		return text
	}

	terms := c.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(terms) == 0 {
		return text
	}

	orig := []rune(text)
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		first, last := mapping.origIdx[start], mapping.origIdx[end-1]
		if !isWordBoundary(orig, first-1) || !isWordBoundary(orig, last+1) {
			continue
		}
		for i := first; i <= last; i++ {
			if !unicode.IsSpace(orig[i]) {
				orig[i] = censorMask
			}
		}
	}
	return string(orig)
}

func mapRunes(input string) runeMapping {
	orig := []rune(input)
	out := runeMapping{
		normalized: make([]rune, 0, len(orig)),
		origIdx:    make([]int, 0, len(orig)),
	}
	for i, r := range orig {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out.normalized = append(out.normalized, unicode.ToLower(clean))
		out.origIdx = append(out.origIdx, i)
	}
	return out
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// simplifyRune folds common leet substitutions.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
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

// isWordBoundary reports whether position i of text is outside the text or
// holds a rune that cannot be part of a word.
func isWordBoundary(text []rune, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := text[i]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
