package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/datagen"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
)

var (
	symbolsUniverse string
	generateCount   int
	generateSeed    uint64
	generateOut     string
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the symbol universe",
	Long: `List the symbols ingest uses when no --symbols are given, with their
asset class and seed price.`,
	RunE: runSymbols,
}

var symbolsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic symbol universe file",
	Long: `Generate a universe of fictional assets with random tickers, names and
seed prices, and write it as YAML for use with --universe. Most assets are
equities; the rest are ETFs, crypto pairs and indexes.

Example:
  pgedge-marketgen symbols generate --count 500 --seed 7 --out universe.yaml`,
	RunE: runSymbolsGenerate,
}

func init() {
	symbolsCmd.Flags().StringVar(&symbolsUniverse, "universe", "",
		"YAML universe file (default: built-in universe)")

	symbolsGenerateCmd.Flags().IntVar(&generateCount, "count", 100,
		"number of symbols to generate")
	symbolsGenerateCmd.Flags().Uint64Var(&generateSeed, "seed", 0,
		"random seed (0 = random)")
	symbolsGenerateCmd.Flags().StringVar(&generateOut, "out", "universe.yaml",
		"output file")

	symbolsCmd.AddCommand(symbolsGenerateCmd)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	path := symbolsUniverse
	if path == "" {
		path = cfg.Ingest.UniverseFile
	}
	u, err := loadUniverse(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tCLASS\tSEED PRICE\tNAME")
	for _, a := range u.Assets() {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", a.Symbol, a.Class, a.SeedPrice, a.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d symbols\n", u.Len())
	return nil
}

func runSymbolsGenerate(cmd *cobra.Command, args []string) error {
	if generateCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	var f *datagen.Faker
	if generateSeed != 0 {
		f = datagen.NewFakerWithSeed(generateSeed)
	} else {
		f = datagen.NewFaker()
	}

	u := datagen.GenerateUniverse(generateCount, f)
	if err := u.Save(generateOut); err != nil {
		return err
	}
	logging.Info().
		Int("symbols", u.Len()).
		Str("file", generateOut).
		Msg("Universe written")
	return nil
}
