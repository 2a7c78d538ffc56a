package cluster

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raphaelgruber/radar/internal/models"
)

// stopTokens are common title words that carry no grouping signal.
var stopTokens = map[string]bool{
	"about": true, "after": true, "against": true, "amid": true,
	"also": true, "been": true, "being": true, "between": true,
	"could": true, "from": true, "have": true, "here": true,
	"into": true, "just": true, "like": true, "more": true,
	"most": true, "over": true, "says": true, "should": true,
	"some": true, "such": true, "than": true, "that": true,
	"their": true, "them": true, "then": true, "there": true,
	"these": true, "they": true, "this": true, "those": true,
	"under": true, "what": true, "when": true, "where": true,
	"which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true,
}

// lexicalThemes groups without a model: first by shared mission, then by
// overlapping title words among whatever is left. Returns an empty list when
// no real grouping emerges; a set holding only the Unsorted bucket says less
// than an empty one.
func lexicalThemes(signals []models.Signal) []models.Theme {
	claimed := make(map[int]bool)
	themes := missionThemes(signals, claimed)
	themes = append(themes, tokenThemes(signals, claimed)...)
	if len(themes) == 0 {
		return []models.Theme{}
	}
	sortThemes(themes)
	return appendResidual(themes, signals, claimed)
}

// missionThemes buckets signals by mission label, in first-appearance order.
// General is a fallback label, not a shared subject, so it never forms a
// theme.
func missionThemes(signals []models.Signal, claimed map[int]bool) []models.Theme {
	var order []string
	buckets := make(map[string][]int)
	for i, s := range signals {
		mission := strings.TrimSpace(s.Mission)
		if mission == "" || mission == models.MissionGeneral {
			continue
		}
		if _, ok := buckets[mission]; !ok {
			order = append(order, mission)
		}
		buckets[mission] = append(buckets[mission], i)
	}

	var themes []models.Theme
	for _, mission := range order {
		idxs := buckets[mission]
		if len(idxs) < 2 {
			continue
		}
		ids := make([]string, len(idxs))
		for i, idx := range idxs {
			ids[i] = signals[idx].ID
			claimed[idx] = true
		}
		themes = append(themes, models.Theme{
			Name:      mission,
			SignalIDs: ids,
			Strength:  models.StrengthFor(len(ids)),
		})
	}
	return themes
}

// tokenThemes greedily groups the unclaimed signals whose titles share at
// least two significant words with a seed title. Seeds are taken in input
// order, so the result is deterministic.
func tokenThemes(signals []models.Signal, claimed map[int]bool) []models.Theme {
	tokens := make([][]string, len(signals))
	sets := make([]map[string]bool, len(signals))
	for i, s := range signals {
		if claimed[i] {
			continue
		}
		tokens[i] = titleTokens(s.Title)
		sets[i] = tokenSet(tokens[i])
	}

	var themes []models.Theme
	for i := range signals {
		if claimed[i] {
			continue
		}
		members := []int{i}
		common := sets[i]
		for j := i + 1; j < len(signals); j++ {
			if claimed[j] || overlap(sets[i], sets[j]) < 2 {
				continue
			}
			members = append(members, j)
			common = intersect(common, sets[j])
		}
		if len(members) < 2 {
			continue
		}

		ids := make([]string, len(members))
		for k, idx := range members {
			ids[k] = signals[idx].ID
			claimed[idx] = true
		}
		name := themeName(tokens[i], common)
		if name == "" {
			name = themeName(tokens[i], intersect(sets[i], sets[members[1]]))
		}
		themes = append(themes, models.Theme{
			Name:      name,
			SignalIDs: ids,
			Strength:  models.StrengthFor(len(ids)),
		})
	}
	return themes
}

// titleTokens extracts the significant words of a title: lowercased,
// stripped of surrounding punctuation, deduped in order of appearance.
// Short words and stopwords are out.
func titleTokens(title string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(title)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 4 || stopTokens[word] || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func overlap(a, b map[string]bool) int {
	n := 0
	for t := range a {
		if b[t] {
			n++
		}
	}
	return n
}

func intersect(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for t := range a {
		if b[t] {
			out[t] = true
		}
	}
	return out
}

// themeName titles a token theme after up to three of the seed's words that
// every member shares, in the seed title's word order.
func themeName(ordered []string, keep map[string]bool) string {
	var parts []string
	for _, tok := range ordered {
		if !keep[tok] {
			continue
		}
		parts = append(parts, titleCase(tok))
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, " ")
}

func titleCase(tok string) string {
	r, size := utf8.DecodeRuneInString(tok)
	if r == utf8.RuneError {
		return tok
	}
	return string(unicode.ToUpper(r)) + tok[size:]
}
