package knowledge

import "strings"

// frenchStopWords is the small stop list used by the keyword fallback
// ranking. Deliberately short: recall matters more than precision there.
var frenchStopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {},
	"de": {}, "du": {}, "au": {}, "aux": {}, "et": {}, "ou": {},
	"mais": {}, "donc": {}, "or": {}, "ni": {}, "car": {},
	"ce": {}, "cet": {}, "cette": {}, "ces": {}, "se": {}, "sa": {},
	"son": {}, "ses": {}, "leur": {}, "leurs": {}, "mon": {}, "ma": {},
	"mes": {}, "ton": {}, "ta": {}, "tes": {}, "notre": {}, "votre": {},
	"je": {}, "tu": {}, "il": {}, "elle": {}, "on": {}, "nous": {},
	"vous": {}, "ils": {}, "elles": {}, "qui": {}, "que": {}, "quoi": {},
	"dont": {}, "où": {}, "est": {}, "sont": {}, "être": {}, "avoir": {},
	"a": {}, "ont": {}, "dans": {}, "sur": {}, "sous": {}, "avec": {},
	"sans": {}, "pour": {}, "par": {}, "pas": {}, "plus": {}, "moins": {},
	"très": {}, "tout": {}, "tous": {}, "toute": {}, "toutes": {},
	"en": {}, "y": {}, "à": {}, "d": {}, "l": {}, "s": {}, "n": {},
	"qu": {}, "c": {}, "j": {},
}

var tokenSeparators = func() map[rune]struct{} {
	seps := map[rune]struct{}{}
	for _, r := range " \t\n\r.,;:!?…()[]{}«»\"'’-—/\\" {
		seps[r] = struct{}{}
	}
	return seps
}()

// Tokenize lowercases text and splits on punctuation and whitespace,
// dropping French stop-words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		_, sep := tokenSeparators[r]
		return sep
	})

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := frenchStopWords[f]; stop {
			continue
		}
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TokenSet returns the deduplicated token bag.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard computes bag-of-words overlap between two texts in [0,1].
func Jaccard(a, b string) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// KeywordOverlap is the share of a's tokens present in b, in [0,1].
func KeywordOverlap(a, b string) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if len(sa) == 0 {
		return 0
	}
	hits := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(sa))
}
