// Package fuzzy provides the approximate text matcher used for free-text card
// search. Candidates come from sahilm/fuzzy subsequence matching; each query
// term must then match inside a single haystack token, and results are ranked
// by match start position, then haystack entry length. Exact mode puts
// whole-token hits first, so an id never ranks below ids it prefixes.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	sfuzzy "github.com/sahilm/fuzzy"
)

// ExactPrefix switches a query from fuzzy to exact substring matching.
const ExactPrefix = "="

// Match is one corpus entry matched by a query.
type Match struct {
	// Index is the entry's position in the corpus.
	Index int
	// Start is the byte offset in the lowercased entry where the first query
	// term's match begins.
	Start int
	// Length is the byte length of the lowercased entry.
	Length int
	// Score is the library's subsequence score; higher is tighter.
	Score int
	// Whole is set when an exact-mode needle equals a run of whole tokens.
	Whole bool
}

// Corpus is a search haystack with its lowercased form computed once.
type Corpus struct {
	entries []string
	lowered []string
}

func NewCorpus(entries []string) *Corpus {
	lowered := make([]string, len(entries))
	for i, s := range entries {
		lowered[i] = strings.ToLower(s)
	}
	return &Corpus{entries: entries, lowered: lowered}
}

// Entries returns the corpus as given to NewCorpus.
func (c *Corpus) Entries() []string { return c.entries }

func (c *Corpus) Len() int { return len(c.entries) }

// Matcher searches a corpus and returns ranked matches.
type Matcher interface {
	Search(corpus *Corpus, query string) []Match
}

// Engine is the default Matcher.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Search returns every corpus entry matching query, best first. A query
// starting with ExactPrefix matches case-insensitive substrings only, and
// entries where it equals whole tokens rank ahead of the rest. An empty query
// matches nothing. The result is never nil.
func (e *Engine) Search(corpus *Corpus, query string) []Match {
	query = strings.TrimSpace(query)
	exact := strings.HasPrefix(query, ExactPrefix)
	if exact {
		query = strings.TrimSpace(strings.TrimPrefix(query, ExactPrefix))
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || corpus == nil || corpus.Len() == 0 {
		return []Match{}
	}

	var matches []Match
	if exact {
		matches = exactMatches(corpus.lowered, strings.Join(terms, " "))
	} else {
		matches = fuzzyMatches(corpus.lowered, terms)
	}
	for i := range matches {
		matches[i].Length = len(corpus.lowered[matches[i].Index])
	}
	Rank(matches)
	return matches
}

// Rank orders whole-token matches first, then by start position, entry
// length, score and corpus position.
func Rank(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Whole != b.Whole {
			return a.Whole
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Length != b.Length {
			return a.Length < b.Length
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Index < b.Index
	})
}

// exactMatches reports every entry containing needle. The start of the first
// whole-token occurrence is preferred over an earlier partial one.
func exactMatches(lowered []string, needle string) []Match {
	out := make([]Match, 0)
	for i, s := range lowered {
		first := strings.Index(s, needle)
		if first < 0 {
			continue
		}
		m := Match{Index: i, Start: first}
		for pos := first; pos >= 0; {
			if onBoundaries(s, pos, pos+len(needle)) {
				m.Start, m.Whole = pos, true
				break
			}
			next := strings.Index(s[pos+1:], needle)
			if next < 0 {
				break
			}
			pos += 1 + next
		}
		out = append(out, m)
	}
	return out
}

// onBoundaries reports whether s[start:end] begins and ends at token edges.
func onBoundaries(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if !unicode.IsSpace(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func fuzzyMatches(lowered []string, terms []string) []Match {
	// The longest term is the most selective candidate filter.
	pivot := terms[0]
	for _, t := range terms[1:] {
		if len(t) > len(pivot) {
			pivot = t
		}
	}
	candidates := sfuzzy.FindNoSort(pivot, lowered)

	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		entry := lowered[c.Index]
		start := -1
		ok := true
		for n, term := range terms {
			pos := tokenMatch(entry, term)
			if pos < 0 {
				ok = false
				break
			}
			if n == 0 {
				start = pos
			}
		}
		if ok {
			out = append(out, Match{Index: c.Index, Start: start, Score: c.Score})
		}
	}
	return out
}

// tokenMatch returns the earliest offset in s where term matches as an
// in-order subsequence contained in one whitespace-delimited token, or -1.
// Hyphens and other punctuation do not split tokens, so "sv1-045" can be
// matched by "v10" or "1-04".
func tokenMatch(s, term string) int {
	tr := []rune(term)
	tokStart := -1
	for i, r := range s + " " {
		if !unicode.IsSpace(r) {
			if tokStart < 0 {
				tokStart = i
			}
			continue
		}
		if tokStart >= 0 {
			if pos := subsequenceStart(s[tokStart:i], tr); pos >= 0 {
				return tokStart + pos
			}
			tokStart = -1
		}
	}
	return -1
}

// subsequenceStart reports where term first matches as a subsequence of tok.
// Only the first occurrence of term's leading rune needs trying: any later
// start leaves a shorter suffix that cannot succeed where the first failed.
func subsequenceStart(tok string, term []rune) int {
	first := strings.IndexRune(tok, term[0])
	if first < 0 {
		return -1
	}
	k := 1
	for _, r := range tok[first+len(string(term[0])):] {
		if k == len(term) {
			break
		}
		if r == term[k] {
			k++
		}
	}
	if k < len(term) {
		return -1
	}
	return first
}
