// Package snapshot defines the published catalog artifact, its manifest, and
// the integrity checks applied before an artifact may be installed.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
)

// Manifest is the small pointer document identifying the current artifact.
type Manifest struct {
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	CheckSum  string    `json:"checkSum"`
	CardCount int       `json:"cardCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UnmarshalJSON accepts both the "checkSum" and "checksum" spellings that
// producers have published.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type plain Manifest
	var raw struct {
		plain
		Checksum string `json:"checksum"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Manifest(raw.plain)
	if m.CheckSum == "" {
		m.CheckSum = raw.Checksum
	}
	return nil
}

// SetInfo is the richer lookup entry used for sets.
type SetInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Series       string `json:"series,omitempty"`
	PrintedTotal int    `json:"printedTotal,omitempty"`
	Total        int    `json:"total,omitempty"`
	LogoKey      string `json:"logoKey,omitempty"`
	SymbolKey    string `json:"symbolKey,omitempty"`
	ReleaseDate  string `json:"releaseDate,omitempty"`
}

// TypeValue is a weakness or resistance entry: a type reference plus the
// printed modifier (e.g. "×2", "-30").
type TypeValue struct {
	TypeID int    `json:"typeId"`
	Value  string `json:"value"`
}

// NormalizedCard is the wire-format card. References are indexes into the
// LookupTables of the same artifact.
type NormalizedCard struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Number               string      `json:"number"`
	HP                   *int        `json:"hp"`
	ConvertedRetreatCost *int        `json:"convertedRetreatCost"`
	PokedexNumberSort    *int        `json:"pokedexNumberSort"`
	SupertypeID          int         `json:"supertypeId"`
	ArtistID             *int        `json:"artistId"`
	RarityID             *int        `json:"rarityId"`
	SetID                int         `json:"setId"`
	TypeIDs              []int       `json:"typeIds"`
	SubtypeIDs           []int       `json:"subtypeIds"`
	WeaknessIDs          []TypeValue `json:"weaknessIds"`
	ResistanceIDs        []TypeValue `json:"resistanceIds"`
	ImageKey             *string     `json:"imageKey"`
}

// LookupTables holds the six ordered value tables cards refer to by index.
type LookupTables struct {
	Supertypes []string  `json:"supertypes"`
	Rarities   []string  `json:"rarities"`
	Sets       []SetInfo `json:"sets"`
	Types      []string  `json:"types"`
	Subtypes   []string  `json:"subtypes"`
	Artists    []string  `json:"artists"`
}

// Artifact is the full exported catalog, versioned as one unit.
type Artifact struct {
	Version string `json:"version"`
	LookupTables
	Cards []NormalizedCard `json:"cards"`
}

// Tables returns the artifact's lookup tables.
func (a *Artifact) Tables() LookupTables {
	return a.LookupTables
}

// ParseManifest decodes and sanity-checks a manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %v", apperrors.ErrParse, err)
	}
	switch {
	case m.Version == "":
		return nil, fmt.Errorf("%w: manifest has no version", apperrors.ErrParse)
	case m.URL == "":
		return nil, fmt.Errorf("%w: manifest has no url", apperrors.ErrParse)
	case m.CheckSum == "":
		return nil, fmt.Errorf("%w: manifest has no checksum", apperrors.ErrParse)
	}
	return &m, nil
}

// ParseArtifact decodes an artifact body and validates its references.
func ParseArtifact(data []byte) (*Artifact, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var a Artifact
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decoding artifact: %v", apperrors.ErrParse, err)
	}
	if a.Version == "" {
		return nil, fmt.Errorf("%w: artifact has no version", apperrors.ErrParse)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks that every card reference resolves inside the lookup
// tables and that card ids are unique.
func (a *Artifact) Validate() error {
	return ValidateCards(a.LookupTables, a.Cards)
}

// ValidateCards is Validate for a table/card pair that did not come from a
// single artifact document, such as state loaded from the durable cache.
func ValidateCards(t LookupTables, cards []NormalizedCard) error {
	seen := make(map[string]struct{}, len(cards))
	for i := range cards {
		c := &cards[i]
		if c.ID == "" {
			return fmt.Errorf("%w: card at position %d has no id", apperrors.ErrParse, i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate card id %q", apperrors.ErrParse, c.ID)
		}
		seen[c.ID] = struct{}{}

		if err := checkRef(c.ID, "supertypeId", c.SupertypeID, len(t.Supertypes)); err != nil {
			return err
		}
		if err := checkRef(c.ID, "setId", c.SetID, len(t.Sets)); err != nil {
			return err
		}
		if c.RarityID != nil {
			if err := checkRef(c.ID, "rarityId", *c.RarityID, len(t.Rarities)); err != nil {
				return err
			}
		}
		if c.ArtistID != nil {
			if err := checkRef(c.ID, "artistId", *c.ArtistID, len(t.Artists)); err != nil {
				return err
			}
		}
		for _, id := range c.TypeIDs {
			if err := checkRef(c.ID, "typeIds", id, len(t.Types)); err != nil {
				return err
			}
		}
		for _, id := range c.SubtypeIDs {
			if err := checkRef(c.ID, "subtypeIds", id, len(t.Subtypes)); err != nil {
				return err
			}
		}
		for _, w := range c.WeaknessIDs {
			if err := checkRef(c.ID, "weaknessIds", w.TypeID, len(t.Types)); err != nil {
				return err
			}
		}
		for _, r := range c.ResistanceIDs {
			if err := checkRef(c.ID, "resistanceIds", r.TypeID, len(t.Types)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkRef(cardID, field string, ref, size int) error {
	if ref < 0 || ref >= size {
		return fmt.Errorf("%w: card %q: %s %d out of range [0,%d)",
			apperrors.ErrParse, cardID, field, ref, size)
	}
	return nil
}

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum compares the digest of data against the expected hex string.
// It detects truncated or corrupted downloads; it is not a signature.
func VerifyChecksum(data []byte, want string) error {
	got := Digest(data)
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: expected %s, got %s", apperrors.ErrIntegrity, want, got)
	}
	return nil
}

// NewManifest builds the manifest a producer publishes next to an artifact.
func NewManifest(data []byte, url string, updatedAt time.Time) (*Manifest, error) {
	a, err := ParseArtifact(data)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Version:   a.Version,
		URL:       url,
		CheckSum:  Digest(data),
		CardCount: len(a.Cards),
		UpdatedAt: updatedAt.UTC(),
	}, nil
}
