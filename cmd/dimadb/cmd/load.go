package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/dimadb/pkg/core"
	"github.com/ChrisMcGann/dimadb/pkg/filter"
	"github.com/ChrisMcGann/dimadb/pkg/loader"
	"github.com/ChrisMcGann/dimadb/pkg/metrics"
	"github.com/ChrisMcGann/dimadb/pkg/source"
)

func init() {
	loadCmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset label for records without a dataset column (default: input base name) [env DIMADB_DATASET]")
	loadCmd.Flags().StringVarP(&inputFormat, "from", "f", "", "Input format: tsv or xlsx (auto-detect if not specified)")
	loadCmd.Flags().BoolVar(&strict, "strict", false, "Abort on the first malformed record instead of skipping it [env DIMADB_STRICT]")
	loadCmd.Flags().IntVar(&retries, "retries", 3, "Extra attempts for a record after a transient storage error [env DIMADB_RETRIES]")
	loadCmd.Flags().BoolVar(&excludeContaminants, "exclude-contaminants", false, "Skip peptides flagged as contaminants [env DIMADB_EXCLUDE_CONTAMINANTS]")
	loadCmd.Flags().StringVar(&minConfidence, "min-confidence", "", "Skip peptides below this confidence: High, Medium, Low [env DIMADB_MIN_CONFIDENCE]")
	loadCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run [env DIMADB_METRICS_FILE]")
	loadCmd.Flags().StringVar(&modsCSV, "mods", "", "CSV of additional modification types (name,mass) [env DIMADB_MODS_CSV]")
	loadCmd.Flags().BoolVar(&createSchema, "create", false, "Create the tables before loading")
	addS3Flags(loadCmd)
}

var createSchema bool

var loadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load a peptide search-result file",
	Long: `Load a tab-delimited or XLSX peptide export into the database.

FILE may be a local path or an s3://bucket/key URL. Malformed records are
logged, skipped and listed in the summary unless --strict is given. Every
record is stored in its own transaction, so an aborted run never leaves a
partially stored record behind.

Examples:
  # Load into the default SQLite database, creating the tables first
  dimadb load --create peptides.txt

  # Load into PostgreSQL under an explicit dataset label
  dimadb load --driver pgx --host db:5432 --database dima --user loader \
    --dataset lab-2017-03 peptides.txt

  # Keep only confident, non-contaminant peptides from S3
  dimadb load --min-confidence Medium --exclude-contaminants s3://runs/peptides.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func addS3Flags(c *cobra.Command) {
	c.Flags().StringVar(&s3Region, "s3-region", "", "S3 region for s3:// inputs [env DIMADB_S3_REGION]")
	c.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL [env DIMADB_S3_ENDPOINT]")
	c.Flags().BoolVar(&s3PathStyle, "s3-path-style", false, "Use path-style S3 addressing [env DIMADB_S3_PATH_STYLE]")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	logger, err := newLogger()
	if err != nil {
		return err
	}

	filterConfig := &filter.Config{
		ExcludeContaminants: cfg.ExcludeContaminants,
		MinConfidence:       cfg.MinConfidence,
	}
	if err := filterConfig.Validate(); err != nil {
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

	writer, err := openWriter(ctx)
	if err != nil {
		return err
	}
	defer writer.Close()

	if createSchema {
		if err := writer.Create(ctx); err != nil {
			return err
		}
	}

	rec := metrics.NewRecorder()
	l := &loader.Loader{
		Writer:        writer,
		Logger:        logger,
		Metrics:       rec,
		Filter:        filterConfig,
		ModDB:         modDB,
		Strict:        cfg.Strict,
		Retries:       cfg.Retries,
		RetryDelay:    cfg.RetryDelay,
		ProgressEvery: 1000,
	}

	fmt.Fprintf(out, "Loading %s into %s...\n", args[0], writer.Dialect().Name)
	fmt.Fprintf(out, "Dataset: %s\n", src.Dataset)

	sum, loadErr := l.Load(ctx, src)
	printSummary(out, sum, true)

	if cfg.MetricsFile != "" {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if core.IsStorageError(loadErr) {
		return fmt.Errorf("load aborted by a database error (records before it are stored): %w", loadErr)
	}
	if loadErr != nil {
		return fmt.Errorf("load aborted: %w", loadErr)
	}
	return nil
}

// openInput opens FILE with the configured S3 settings and dataset label.
func openInput(cmd *cobra.Command, p string) (*loader.OpenedSource, error) {
	opener := source.NewOpener(cfg.S3())
	src, err := loader.Open(cmd.Context(), opener, p, cfg.Dataset, inputFormat)
	if errors.Is(err, core.ErrInputNotFound) {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}
	return src, err
}

// loadModDatabase returns the built-in modification types plus any from the
// configured CSV (name,mass per line).
func loadModDatabase(logger *slog.Logger) (*core.ModDatabase, error) {
	modDB := core.DefaultModDatabase()
	if cfg.ModsCSV == "" {
		return modDB, nil
	}

	f, err := os.Open(cfg.ModsCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to open modifications CSV: %w", err)
	}
	defer f.Close()

	if err := modDB.LoadFromCSV(f); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.ModsCSV, err)
	}
	logger.Info("loaded modification types", "path", cfg.ModsCSV, "total", len(modDB.Names()))
	return modDB, nil
}

func printSummary(out io.Writer, sum loader.Summary, stored bool) {
	fmt.Fprintf(out, "\nRead: %d records\n", sum.Read)
	if stored {
		fmt.Fprintf(out, "Loaded: %d peptides (%d rows)\n", sum.Loaded, sum.Rows)
	} else {
		fmt.Fprintf(out, "Valid: %d records\n", sum.Loaded)
	}
	if sum.Filtered > 0 {
		fmt.Fprintf(out, "Filtered: %d records\n", sum.Filtered)
	}
	if sum.Skipped > 0 {
		fmt.Fprintf(out, "Skipped: %d records (parse errors)\n", sum.Skipped)
		for _, e := range sum.Errors {
			fmt.Fprintf(out, "  %v\n", e)
		}
	}
}
