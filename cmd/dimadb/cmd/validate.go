package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/dimadb/pkg/core"
	"github.com/ChrisMcGann/dimadb/pkg/loader"
)

func init() {
	validateCmd.Flags().StringVarP(&inputFormat, "from", "f", "", "Input format: tsv or xlsx (auto-detect if not specified)")
	validateCmd.Flags().StringVar(&modsCSV, "mods", "", "CSV of additional modification types (name,mass) [env DIMADB_MODS_CSV]")
	addS3Flags(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate input file format and contents",
	Long: `Parse every record of FILE without touching the database. Reports
malformed records and every modification type seen with its mass shift,
or "unknown" when it is in neither the built-in list nor the --mods CSV.
Exits non-zero when any record is malformed.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	logger, err := newLogger()
	if err != nil {
		return err
	}

	modDB, err := loadModDatabase(logger)
	if err != nil {
		return err
	}

	src, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	l := &loader.Loader{Logger: logger, ModDB: modDB}
	sum, err := l.Load(cmd.Context(), src)
	printSummary(out, sum, false)
	if err != nil {
		return err
	}

	header := src.Header()
	fmt.Fprintf(out, "Columns: %d\n", len(header))
	if !hasColumn(header, core.FieldAnnotatedSequence) {
		fmt.Fprintf(out, "Missing required column: %s\n", core.FieldAnnotatedSequence)
	}

	if len(sum.Mods) > 0 {
		names := make([]string, 0, len(sum.Mods))
		for name := range sum.Mods {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(out, "Modification types:\n")
		for _, name := range names {
			if mass, ok := modDB.GetMass(name); ok {
				fmt.Fprintf(out, "  %s (%d) %+.6f Da\n", name, sum.Mods[name], mass)
			} else {
				fmt.Fprintf(out, "  %s (%d) unknown\n", name, sum.Mods[name])
			}
		}
	}

	if sum.Skipped > 0 {
		return fmt.Errorf("%d malformed records in %s", sum.Skipped, args[0])
	}
	return nil
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
