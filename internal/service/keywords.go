package service

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/TheHatt/revboard/internal/domain"
)

const minKeywordLength = 3

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

var stopWords = buildStopWords(
	// German
	"und", "oder", "der", "die", "das", "den", "dem", "des", "ein", "eine", "einen", "einem", "einer",
	"ich", "du", "er", "sie", "es", "wir", "ihr",
	"ist", "sind", "war", "waren", "sein", "bin", "bist", "seid",
	"in", "im", "ins", "aus", "auf", "an", "am", "bei", "mit", "ohne", "für", "von", "vom", "zur", "zum", "zu",
	"dass", "wie", "so", "auch", "nur", "noch", "schon", "sehr", "mehr", "weniger", "mal", "immer", "nie",
	"hier", "dort", "da", "dann", "doch", "wohl", "eben", "etwa", "etwas", "kein", "keine", "keinen",
	"über", "unter", "zwischen", "gegen", "nach", "vor", "hinter", "neben",
	"was", "wer", "wo", "wann", "warum", "wieso", "weshalb",
	"haben", "hat", "habe", "hatte", "hätten", "machen", "macht", "gemacht",
	"weil", "aber", "also", "wenn", "falls", "sobald", "trotzdem",
	// English
	"the", "and", "for", "with", "was", "were", "this", "that", "are", "but", "not", "you",
	"very", "have", "has", "had", "our", "they", "from", "all", "there", "their", "would", "will",
	"just", "been", "too", "its",
)

func buildStopWords(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[normalizeText(w)] = struct{}{}
	}
	return set
}

// normalizeText lower-cases s, spells out German umlauts and strips the
// remaining combining marks.
func normalizeText(s string) string {
	s = umlauts.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// tokenize splits a normalized text into keyword candidates.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(normalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minKeywordLength || isNumeric(f) {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// topKeywords returns the n most frequent terms across texts. Ties keep the
// order in which the terms first appeared.
func topKeywords(texts []string, n int) []domain.KeywordCount {
	index := make(map[string]int)
	counts := []domain.KeywordCount{}
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			i, ok := index[tok]
			if !ok {
				i = len(counts)
				index[tok] = i
				counts = append(counts, domain.KeywordCount{Term: tok})
			}
			counts[i].Count++
		}
	}

	slices.SortStableFunc(counts, func(a, b domain.KeywordCount) int {
		return b.Count - a.Count
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
