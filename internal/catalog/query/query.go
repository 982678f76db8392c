// Package query evaluates facet filters and free-text search against a built
// catalog. Evaluation is a total function: every input, including unknown
// facet values and an absent catalog, yields a (possibly empty) result.
package query

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
)

// idPattern recognises id-shaped search terms such as "sv1-045" or
// "swsh12pt5-160": alphanumeric segments joined by a single hyphen.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9]+-[A-Za-z0-9]+$`)

// Filters is the full set of active constraints. Facet values match exactly;
// an empty value leaves that facet unconstrained.
type Filters struct {
	Search string
	Facets map[index.Facet]string
}

// With returns a copy of f constrained on facet to value.
func (f Filters) With(facet index.Facet, value string) Filters {
	facets := make(map[index.Facet]string, len(f.Facets)+1)
	for k, v := range f.Facets {
		facets[k] = v
	}
	facets[facet] = value
	return Filters{Search: f.Search, Facets: facets}
}

// HasSearch reports whether f carries a non-blank search term, which selects
// the matcher path in Evaluate.
func (f Filters) HasSearch() bool {
	return strings.TrimSpace(f.Search) != ""
}

// FacetFilter is one active facet constraint.
type FacetFilter struct {
	Facet index.Facet
	Value string
}

// Active returns the facet constraints with a non-empty value, in facet order.
func (f Filters) Active() []FacetFilter {
	active := make([]FacetFilter, 0, len(f.Facets))
	for _, facet := range index.Facets {
		if v := f.Facets[facet]; v != "" {
			active = append(active, FacetFilter{Facet: facet, Value: v})
		}
	}
	return active
}

// Key is a canonical encoding of f, stable across map iteration order.
func (f Filters) Key() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(strings.ToLower(strings.TrimSpace(f.Search)))
	for _, a := range f.Active() {
		b.WriteString("|")
		b.WriteString(a.Facet.String())
		b.WriteString("=")
		b.WriteString(a.Value)
	}
	return b.String()
}

// IsIDLike reports whether term has the shape of a card id.
func IsIDLike(term string) bool {
	return idPattern.MatchString(strings.TrimSpace(term))
}

// RewriteSearch prefixes id-shaped terms with the exact-match marker so id
// lookups are never approximated.
func RewriteSearch(term string) string {
	term = strings.TrimSpace(term)
	if IsIDLike(term) {
		return fuzzy.ExactPrefix + term
	}
	return term
}

// Evaluate returns the cards satisfying every active constraint. Without a
// search term the result follows catalog list order; with one, it follows the
// matcher's ranking. The result is never nil.
func Evaluate(cat *index.Catalog, f Filters) []*index.IndexedCard {
	if cat == nil {
		return []*index.IndexedCard{}
	}
	if !f.HasSearch() {
		return evaluateFacets(cat, f.Active())
	}
	return evaluateSearch(cat, f.Search, f.Active())
}

// MatchingIDs intersects the active facet constraints, starting from the
// universal set. An unknown facet value empties the result immediately. With
// no active facets the catalog's shared universal set is returned; callers
// must not modify the result.
func MatchingIDs(cat *index.Catalog, active []FacetFilter) index.IDSet {
	running := cat.AllIDs()
	for _, a := range active {
		set := cat.Index(a.Facet).Lookup(a.Value)
		if set.Len() == 0 {
			return index.IDSet{}
		}
		running = index.Intersect(running, set)
		if running.Len() == 0 {
			return running
		}
	}
	return running
}

func evaluateFacets(cat *index.Catalog, active []FacetFilter) []*index.IndexedCard {
	if len(active) == 0 {
		out := make([]*index.IndexedCard, len(cat.Cards()))
		copy(out, cat.Cards())
		return out
	}
	ids := MatchingIDs(cat, active)
	out := make([]*index.IndexedCard, 0, ids.Len())
	for id := range ids {
		if card, ok := cat.Card(id); ok {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func evaluateSearch(cat *index.Catalog, search string, active []FacetFilter) []*index.IndexedCard {
	matches := cat.Matcher().Search(cat.Corpus(), RewriteSearch(search))
	out := make([]*index.IndexedCard, 0, len(matches))
	for _, m := range matches {
		if m.Index < 0 || m.Index >= cat.Len() {
			continue
		}
		card := cat.At(m.Index)
		if satisfies(cat, card.ID, active) {
			out = append(out, card)
		}
	}
	return out
}

func satisfies(cat *index.Catalog, id string, active []FacetFilter) bool {
	for _, a := range active {
		if !cat.Index(a.Facet).Contains(a.Value, id) {
			return false
		}
	}
	return true
}

// Page slices results for offset/limit pagination. A non-positive limit
// returns everything after offset.
func Page[T any](results []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []T{}
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
