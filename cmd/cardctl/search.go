package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/index"
	"github.com/Adithya-Monish-Kumar-K/card-catalog-index/internal/catalog/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/card-catalog-index/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	flagSearchFacets map[string]string
	flagSearchLimit  int
	flagSearchOffset int
	flagSearchJSON   bool
	flagSearchSync   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Query the cached catalog by free text and facets",
	Long: `Query the cached catalog. Facet constraints are exact and combine with AND:

  cardctl search --facet type=Fire --facet rarity=Rare
  cardctl search char --facet set=sv3
  cardctl search sv3-125`,
	RunE: runSearch,
}

var facetsCmd = &cobra.Command{
	Use:   "facets <facet>",
	Short: "List the values of a facet with their card counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runFacets,
}

func init() {
	searchCmd.Flags().StringToStringVar(&flagSearchFacets, "facet", nil, "facet constraint name=value (repeatable)")
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", 20, "maximum cards to print (0 for all)")
	searchCmd.Flags().IntVar(&flagSearchOffset, "offset", 0, "skip this many results")
	searchCmd.Flags().BoolVar(&flagSearchJSON, "json", false, "print denormalized cards as JSON")
	searchCmd.Flags().BoolVar(&flagSearchSync, "sync", false, "synchronise before querying when the cache is empty")
	rootCmd.AddCommand(searchCmd, facetsCmd)
}

func loadCatalog(cmd *cobra.Command, allowSync bool) (*index.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	s, closer, err := openSyncer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	if !s.Rehydrate(ctx) && allowSync {
		if err := s.Initialize(ctx); err != nil {
			return nil, err
		}
	}
	cat := s.Catalog()
	if cat == nil {
		return nil, fmt.Errorf("%w: run 'cardctl sync' first", apperrors.ErrNotReady)
	}
	return cat, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	filters := query.Filters{Search: strings.Join(args, " ")}
	for name, value := range flagSearchFacets {
		facet, err := index.ParseFacet(name)
		if err != nil {
			return err
		}
		filters = filters.With(facet, value)
	}

	cat, err := loadCatalog(cmd, flagSearchSync)
	if err != nil {
		return err
	}
	results := query.Evaluate(cat, filters)
	page := query.Page(results, flagSearchOffset, flagSearchLimit)

	out := cmd.OutOrStdout()
	if flagSearchJSON {
		cards := make([]index.DenormalizedCard, len(page))
		for i, c := range page {
			cards[i] = cat.Denormalize(c)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cards)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSET\tRARITY\tTYPES")
	for _, c := range page {
		d := cat.Denormalize(c)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Set.Name, d.Rarity, strings.Join(d.Types, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d matches (catalog %s)\n", len(page), len(results), cat.Version())
	return nil
}

func runFacets(cmd *cobra.Command, args []string) error {
	facet, err := index.ParseFacet(args[0])
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cmd, false)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tCARDS\n", strings.ToUpper(facet.String()))
	for _, vc := range cat.Index(facet).Counts() {
		fmt.Fprintf(tw, "%s\t%d\n", vc.Value, vc.Count)
	}
	return tw.Flush()
}
