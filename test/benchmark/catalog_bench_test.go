// Package benchmark contains Go benchmarks for catalog indexing, faceted
// query evaluation and free-text matching over a synthetic catalog.
package benchmark

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/fuzzy"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/query"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/searcher/cache"
)

var names = []string{"Charizard", "Blastoise", "Venusaur", "Pikachu", "Gardevoir", "Mewtwo", "Lucario", "Gengar"}

// syntheticArtifact builds n valid cards spread evenly over small lookup
// tables, roughly the shape of a full production export.
func syntheticArtifact(n int) *snapshot.Artifact {
	tables := snapshot.LookupTables{
		Supertypes: []string{"Pokémon", "Trainer", "Energy"},
		Rarities:   []string{"Common", "Uncommon", "Rare", "Double Rare", "Illustration Rare"},
		Types:      []string{"Fire", "Water", "Grass", "Lightning", "Psychic", "Fighting", "Darkness", "Metal"},
		Subtypes:   []string{"Basic", "Stage 1", "Stage 2", "ex", "Item", "Supporter"},
	}
	for i := 0; i < 40; i++ {
		tables.Sets = append(tables.Sets, snapshot.SetInfo{ID: fmt.Sprintf("s%02d", i), Name: fmt.Sprintf("Set %d", i), Series: "Bench", Total: n / 40})
	}
	for i := 0; i < 200; i++ {
		tables.Artists = append(tables.Artists, fmt.Sprintf("Artist %d", i))
	}

	cards := make([]snapshot.NormalizedCard, n)
	for i := range cards {
		rarity := i % len(tables.Rarities)
		artist := i % len(tables.Artists)
		set := i % len(tables.Sets)
		cards[i] = snapshot.NormalizedCard{
			ID:          fmt.Sprintf("%s-%d", tables.Sets[set].ID, i),
			Name:        fmt.Sprintf("%s %d", names[i%len(names)], i),
			Number:      fmt.Sprint(i),
			SupertypeID: i % len(tables.Supertypes),
			RarityID:    &rarity,
			ArtistID:    &artist,
			SetID:       set,
			TypeIDs:     []int{i % len(tables.Types)},
			SubtypeIDs:  []int{i % len(tables.Subtypes)},
			WeaknessIDs: []snapshot.TypeValue{{TypeID: (i + 1) % len(tables.Types), Value: "×2"}},
		}
	}
	return &snapshot.Artifact{Version: "bench", LookupTables: tables, Cards: cards}
}

func buildCatalog(b *testing.B, n int) *index.Catalog {
	b.Helper()
	a := syntheticArtifact(n)
	cat, err := index.Build(a.Version, a.Tables(), a.Cards, fuzzy.NewEngine())
	if err != nil {
		b.Fatal(err)
	}
	return cat
}

// BenchmarkBuild measures primary map, haystack and facet index construction.
func BenchmarkBuild(b *testing.B) {
	for _, n := range []int{1000, 20000} {
		a := syntheticArtifact(n)
		b.Run(fmt.Sprintf("cards_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := index.Build(a.Version, a.Tables(), a.Cards, fuzzy.NewEngine()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkParseArtifact measures decoding plus validation of an export.
func BenchmarkParseArtifact(b *testing.B) {
	data, err := json.Marshal(syntheticArtifact(20000))
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a, err := snapshot.ParseArtifact(data)
		if err != nil {
			b.Fatal(err)
		}
		if err := a.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEvaluate covers the query modes against a 20 000 card catalog.
func BenchmarkEvaluate(b *testing.B) {
	cat := buildCatalog(b, 20000)
	cases := []struct {
		name    string
		filters query.Filters
	}{
		{"all", query.Filters{}},
		{"one_facet", query.Filters{}.With(index.FacetType, "Fire")},
		{"three_facets", query.Filters{}.With(index.FacetType, "Fire").With(index.FacetRarity, "Common").With(index.FacetSet, "s00")},
		{"fuzzy", query.Filters{Search: "chrzd"}},
		{"exact", query.Filters{Search: "=charizard 1"}},
		{"fuzzy_and_facet", query.Filters{Search: "pika"}.With(index.FacetRarity, "Rare")},
		{"id_like", query.Filters{Search: "s01-41"}},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = query.Evaluate(cat, tc.filters)
			}
		})
	}
}

// BenchmarkEvaluateParallel measures concurrent readers of one catalog.
func BenchmarkEvaluateParallel(b *testing.B) {
	cat := buildCatalog(b, 20000)
	f := query.Filters{Search: "gard"}.With(index.FacetType, "Psychic")
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = query.Evaluate(cat, f)
		}
	})
}

// BenchmarkFuzzySearch isolates the matcher from index intersection.
func BenchmarkFuzzySearch(b *testing.B) {
	cat := buildCatalog(b, 20000)
	engine := fuzzy.NewEngine()
	for _, q := range []string{"c", "char", "charizard ex", "=venusaur"} {
		b.Run(q, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = engine.Search(cat.Corpus(), q)
			}
		})
	}
}

func BenchmarkCacheKey(b *testing.B) {
	f := query.Filters{Search: "Charizard"}.With(index.FacetType, "Fire").With(index.FacetRarity, "Rare")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = cache.Key("bench", f, 0, 60)
	}
}
