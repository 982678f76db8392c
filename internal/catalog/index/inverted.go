package index

import (
	"fmt"
	"sort"
	"strings"
)

// Facet names one filterable dimension of a card.
type Facet int

const (
	FacetRarity Facet = iota
	FacetSet
	FacetType
	FacetSubtype
	FacetArtist
	FacetWeakness
	FacetResistance
)

const numFacets = int(FacetResistance) + 1

// Facets lists every facet in a stable order.
var Facets = []Facet{
	FacetRarity,
	FacetSet,
	FacetType,
	FacetSubtype,
	FacetArtist,
	FacetWeakness,
	FacetResistance,
}

func (f Facet) String() string {
	switch f {
	case FacetRarity:
		return "rarity"
	case FacetSet:
		return "set"
	case FacetType:
		return "type"
	case FacetSubtype:
		return "subtype"
	case FacetArtist:
		return "artist"
	case FacetWeakness:
		return "weakness"
	case FacetResistance:
		return "resistance"
	default:
		return "unknown"
	}
}

// ParseFacet maps a facet name (as used in query parameters) to a Facet.
func ParseFacet(name string) (Facet, error) {
	for _, f := range Facets {
		if strings.EqualFold(f.String(), name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown facet %q", name)
}

// IDSet is a set of card ids.
type IDSet map[string]struct{}

func (s IDSet) Len() int { return len(s) }

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Intersect returns the ids present in both sets. It walks the smaller set and
// probes the larger, so the cost is bounded by min(|a|, |b|). Neither input is
// modified.
func Intersect(a, b IDSet) IDSet {
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet, len(small))
	for id := range small {
		if _, ok := large[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// InvertedIndex maps the values of one facet to the ids of the cards carrying
// them. Each facet gets its own instance so that equal strings in different
// facets never collide.
type InvertedIndex struct {
	facet    Facet
	postings map[string]IDSet
}

func NewInvertedIndex(facet Facet) *InvertedIndex {
	return &InvertedIndex{
		facet:    facet,
		postings: make(map[string]IDSet),
	}
}

func (x *InvertedIndex) Facet() Facet { return x.facet }

// Add records that card id has facet value key.
func (x *InvertedIndex) Add(key, id string) {
	set, ok := x.postings[key]
	if !ok {
		set = make(IDSet)
		x.postings[key] = set
	}
	set[id] = struct{}{}
}

// Lookup returns the ids for key. A missing key yields an empty set, never an
// error. The returned set must not be modified.
func (x *InvertedIndex) Lookup(key string) IDSet {
	if set, ok := x.postings[key]; ok {
		return set
	}
	return IDSet{}
}

func (x *InvertedIndex) Contains(key, id string) bool {
	return x.postings[key].Has(id)
}

// Keys returns the facet values present in the index, sorted.
func (x *InvertedIndex) Keys() []string {
	keys := make([]string, 0, len(x.postings))
	for k := range x.postings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValueCount is a facet value with the number of cards carrying it.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Counts returns every facet value with its card count, most frequent first.
func (x *InvertedIndex) Counts() []ValueCount {
	out := make([]ValueCount, 0, len(x.postings))
	for k, set := range x.postings {
		out = append(out, ValueCount{Value: k, Count: len(set)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
