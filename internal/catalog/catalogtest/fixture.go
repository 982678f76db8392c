// Package catalogtest builds small, fully valid catalogs for tests across the
// catalog packages.
package catalogtest

import (
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/snapshot"
)

func intp(v int) *int { return &v }

// Tables returns lookup tables where "Fire" is both a type and an artist, so
// facet namespaces can be told apart.
func Tables() snapshot.LookupTables {
	return snapshot.LookupTables{
		Supertypes: []string{"Pokémon", "Trainer"},
		Rarities:   []string{"Rare", "Common"},
		Sets: []snapshot.SetInfo{
			{ID: "sv3", Name: "Obsidian Flames", Series: "Scarlet & Violet", Total: 230},
			{ID: "sv1", Name: "Scarlet & Violet", Series: "Scarlet & Violet", Total: 258},
		},
		Types:    []string{"Fire", "Water", "Grass"},
		Subtypes: []string{"Basic", "Stage 2"},
		Artists:  []string{"Mitsuhiro Arita", "Fire"},
	}
}

// Cards returns three cards:
//
//	A sv3-125 Charizard ex  Rare   Fire
//	B sv1-045 Blastoise     Rare   Water  (artist "Fire")
//	C sv3-030 Charmander    Common Fire
func Cards() []snapshot.NormalizedCard {
	return []snapshot.NormalizedCard{
		{
			ID: "sv3-125", Name: "Charizard ex", Number: "125",
			HP: intp(330), ConvertedRetreatCost: intp(2), PokedexNumberSort: intp(6),
			SupertypeID: 0, RarityID: intp(0), ArtistID: intp(0), SetID: 0,
			TypeIDs: []int{0}, SubtypeIDs: []int{1},
			WeaknessIDs: []snapshot.TypeValue{{TypeID: 1, Value: "×2"}},
		},
		{
			ID: "sv1-045", Name: "Blastoise", Number: "045",
			HP: intp(180), PokedexNumberSort: intp(9),
			SupertypeID: 0, RarityID: intp(0), ArtistID: intp(1), SetID: 1,
			TypeIDs: []int{1}, SubtypeIDs: []int{1},
			WeaknessIDs: []snapshot.TypeValue{{TypeID: 2, Value: "×2"}},
		},
		{
			ID: "sv3-030", Name: "Charmander", Number: "030",
			HP: intp(70), PokedexNumberSort: intp(4),
			SupertypeID: 0, RarityID: intp(1), SetID: 0,
			TypeIDs: []int{0}, SubtypeIDs: []int{0},
			WeaknessIDs:   []snapshot.TypeValue{{TypeID: 1, Value: "×2"}},
			ResistanceIDs: []snapshot.TypeValue{{TypeID: 2, Value: "-30"}},
		},
	}
}

// Artifact returns the fixture as an artifact of the given version.
func Artifact(version string) *snapshot.Artifact {
	return &snapshot.Artifact{Version: version, LookupTables: Tables(), Cards: Cards()}
}

// ArtifactJSON returns the encoded artifact for version.
func ArtifactJSON(version string) []byte {
	data, err := json.Marshal(Artifact(version))
	if err != nil {
		panic(err)
	}
	return data
}

// ManifestJSON returns a manifest pointing at url whose checksum matches body.
func ManifestJSON(version, url string, body []byte) []byte {
	data, err := json.Marshal(snapshot.Manifest{
		Version:   version,
		URL:       url,
		CheckSum:  snapshot.Digest(body),
		CardCount: len(Cards()),
	})
	if err != nil {
		panic(err)
	}
	return data
}
