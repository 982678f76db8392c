// Package index builds the in-memory query structures for one catalog
// snapshot: the primary id map, seven facet inverted indexes and the search
// haystack consumed by the fuzzy matcher.
package index

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
)

// IndexedCard is a card plus its position in the catalog's card list.
type IndexedCard struct {
	snapshot.NormalizedCard
	Index int `json:"_index"`
}

// Catalog is an immutable, fully indexed snapshot. It is built once per
// adopted version and replaced wholesale, never mutated.
type Catalog struct {
	version  string
	tables   snapshot.LookupTables
	cards    []snapshot.NormalizedCard
	byID     map[string]*IndexedCard
	all      IDSet
	ordered  []*IndexedCard
	corpus   *fuzzy.Corpus
	indexes  [numFacets]*InvertedIndex
	matcher  fuzzy.Matcher
}

// Build derives every index from the given tables and cards in a single pass.
// It never merges with prior state, so it is safe to call after rehydration
// and again after a network fetch. References are validated first; a card
// list paired with tables from another version fails here rather than
// producing a skewed catalog.
func Build(version string, tables snapshot.LookupTables, cards []snapshot.NormalizedCard, matcher fuzzy.Matcher) (*Catalog, error) {
	if err := snapshot.ValidateCards(tables, cards); err != nil {
		return nil, fmt.Errorf("building catalog %s: %w", version, err)
	}
	if matcher == nil {
		matcher = fuzzy.NewEngine()
	}
	c := &Catalog{
		version:  version,
		tables:   tables,
		cards:    cards,
		byID:     make(map[string]*IndexedCard, len(cards)),
		all:      make(IDSet, len(cards)),
		ordered:  make([]*IndexedCard, len(cards)),
		matcher:  matcher,
	}
	for _, f := range Facets {
		c.indexes[f] = NewInvertedIndex(f)
	}

	haystack := make([]string, len(cards))
	for i := range cards {
		card := cards[i]
		ic := &IndexedCard{NormalizedCard: card, Index: i}
		c.byID[card.ID] = ic
		c.all[card.ID] = struct{}{}
		c.ordered[i] = ic
		haystack[i] = card.Name + " " + card.ID

		if card.RarityID != nil {
			c.indexes[FacetRarity].Add(tables.Rarities[*card.RarityID], card.ID)
		}
		c.indexes[FacetSet].Add(tables.Sets[card.SetID].ID, card.ID)
		if card.ArtistID != nil {
			c.indexes[FacetArtist].Add(tables.Artists[*card.ArtistID], card.ID)
		}
		for _, t := range card.TypeIDs {
			c.indexes[FacetType].Add(tables.Types[t], card.ID)
		}
		for _, st := range card.SubtypeIDs {
			c.indexes[FacetSubtype].Add(tables.Subtypes[st], card.ID)
		}
		for _, w := range card.WeaknessIDs {
			c.indexes[FacetWeakness].Add(tables.Types[w.TypeID], card.ID)
		}
		for _, r := range card.ResistanceIDs {
			c.indexes[FacetResistance].Add(tables.Types[r.TypeID], card.ID)
		}
	}
	c.corpus = fuzzy.NewCorpus(haystack)
	return c, nil
}

func (c *Catalog) Version() string { return c.version }

func (c *Catalog) Tables() snapshot.LookupTables { return c.tables }

func (c *Catalog) Len() int { return len(c.ordered) }

// Haystack returns the search corpus, one "{name} {id}" entry per card in
// list order.
func (c *Catalog) Haystack() []string { return c.corpus.Entries() }

// Corpus returns the haystack prepared for the matcher.
func (c *Catalog) Corpus() *fuzzy.Corpus { return c.corpus }

func (c *Catalog) Matcher() fuzzy.Matcher { return c.matcher }

// RawCards returns the normalized card list the catalog was built from, as
// persisted to the durable cache.
func (c *Catalog) RawCards() []snapshot.NormalizedCard { return c.cards }

// Card returns the card with the given id.
func (c *Catalog) Card(id string) (*IndexedCard, bool) {
	ic, ok := c.byID[id]
	return ic, ok
}

// At returns the card at list position i.
func (c *Catalog) At(i int) *IndexedCard {
	return c.ordered[i]
}

// Cards returns every card in list order. The slice must not be modified.
func (c *Catalog) Cards() []*IndexedCard {
	return c.ordered
}

// AllIDs returns the universal id set. It is shared and must not be modified.
func (c *Catalog) AllIDs() IDSet {
	return c.all
}

// Index returns the inverted index for facet f.
func (c *Catalog) Index(f Facet) *InvertedIndex {
	if f < 0 || int(f) >= len(c.indexes) {
		return NewInvertedIndex(f)
	}
	return c.indexes[f]
}

// TypeEffect is a resolved weakness or resistance.
type TypeEffect struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DenormalizedCard is a card with every reference resolved, as consumed by
// the rendering layer.
type DenormalizedCard struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Number               string           `json:"number"`
	HP                   *int             `json:"hp,omitempty"`
	ConvertedRetreatCost *int             `json:"convertedRetreatCost,omitempty"`
	PokedexNumberSort    *int             `json:"pokedexNumberSort,omitempty"`
	Supertype            string           `json:"supertype"`
	Rarity               string           `json:"rarity,omitempty"`
	Artist               string           `json:"artist,omitempty"`
	Set                  snapshot.SetInfo `json:"set"`
	Types                []string         `json:"types"`
	Subtypes             []string         `json:"subtypes"`
	Weaknesses           []TypeEffect     `json:"weaknesses"`
	Resistances          []TypeEffect     `json:"resistances"`
	ImageKey             *string          `json:"imageKey,omitempty"`
}

// Denormalize resolves a card's references through this catalog's tables.
func (c *Catalog) Denormalize(card *IndexedCard) DenormalizedCard {
	t := c.tables
	d := DenormalizedCard{
		ID:                   card.ID,
		Name:                 card.Name,
		Number:               card.Number,
		HP:                   card.HP,
		ConvertedRetreatCost: card.ConvertedRetreatCost,
		PokedexNumberSort:    card.PokedexNumberSort,
		Supertype:            t.Supertypes[card.SupertypeID],
		Set:                  t.Sets[card.SetID],
		Types:                make([]string, 0, len(card.TypeIDs)),
		Subtypes:             make([]string, 0, len(card.SubtypeIDs)),
		Weaknesses:           make([]TypeEffect, 0, len(card.WeaknessIDs)),
		Resistances:          make([]TypeEffect, 0, len(card.ResistanceIDs)),
		ImageKey:             card.ImageKey,
	}
	if card.RarityID != nil {
		d.Rarity = t.Rarities[*card.RarityID]
	}
	if card.ArtistID != nil {
		d.Artist = t.Artists[*card.ArtistID]
	}
	for _, id := range card.TypeIDs {
		d.Types = append(d.Types, t.Types[id])
	}
	for _, id := range card.SubtypeIDs {
		d.Subtypes = append(d.Subtypes, t.Subtypes[id])
	}
	for _, w := range card.WeaknessIDs {
		d.Weaknesses = append(d.Weaknesses, TypeEffect{Type: t.Types[w.TypeID], Value: w.Value})
	}
	for _, r := range card.ResistanceIDs {
		d.Resistances = append(d.Resistances, TypeEffect{Type: t.Types[r.TypeID], Value: r.Value})
	}
	return d
}
