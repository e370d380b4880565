// Package cmd provides CLI command implementations
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/dimadb/pkg/config"
	"github.com/ChrisMcGann/dimadb/pkg/writer/sqldb"
)

var (
	// Connection and logging flags shared by all commands
	driver   string
	dsn      string
	user     string
	password string
	host     string
	database string
	logLevel string

	// Load and validate flags
	dataset             string
	inputFormat         string
	strict              bool
	retries             int
	excludeContaminants bool
	minConfidence       string
	metricsFile         string
	modsCSV             string
	s3Endpoint          string
	s3Region            string
	s3PathStyle         bool
)

// cfg is the effective configuration of the running command: .env and
// DIMADB_* variables first, then any flag given on the command line.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "dimadb",
	Short: "dimadb - proteomics search-result loader",
	Long: `dimadb loads tab-delimited (or XLSX) peptide search results into a
relational database.

Each data line becomes one peptide row plus its abundances, protein
sequence matches with their search-engine scores, and modifications.
Connection settings come from DIMADB_* environment variables or a .env
file and can be overridden with flags.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command and prints any aborting error. An interrupt
// cancels the run between records.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(dropCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&driver, "driver", "", "Database driver: sqlite3, sqlite or pgx [env DIMADB_DRIVER, default sqlite3]")
	pf.StringVar(&dsn, "connect", "", "Full connection string, overrides the other connection flags [env DIMADB_CONNECT]")
	pf.StringVar(&user, "user", "", "Database user [env DIMADB_USER]")
	pf.StringVar(&password, "password", "", "Database password [env DIMADB_PASSWORD]")
	pf.StringVar(&host, "host", "", "Database host[:port] [env DIMADB_HOST]")
	pf.StringVar(&database, "database", "", "Database name, or file path for SQLite [env DIMADB_DATABASE, default dimadb.db]")
	pf.StringVar(&logLevel, "loglevel", "", "Log level: DEBUG, INFO, WARN or ERROR [env DIMADB_LOGLEVEL, default "+config.DefaultLogLevel+"]")
}

// loadConfig layers the command-line flags over the environment.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}
	set("driver", func() { loaded.Driver = driver })
	set("connect", func() { loaded.DSN = dsn })
	set("user", func() { loaded.User = user })
	set("password", func() { loaded.Password = password })
	set("host", func() { loaded.Host = host })
	set("database", func() { loaded.Database = database })
	set("loglevel", func() { loaded.LogLevel = logLevel })
	set("dataset", func() { loaded.Dataset = dataset })
	set("strict", func() { loaded.Strict = strict })
	set("retries", func() { loaded.Retries = retries })
	set("exclude-contaminants", func() { loaded.ExcludeContaminants = excludeContaminants })
	set("min-confidence", func() { loaded.MinConfidence = minConfidence })
	set("metrics-file", func() { loaded.MetricsFile = metricsFile })
	set("mods", func() { loaded.ModsCSV = modsCSV })
	set("s3-endpoint", func() { loaded.S3Endpoint = s3Endpoint })
	set("s3-region", func() { loaded.S3Region = s3Region })
	set("s3-path-style", func() { loaded.S3PathStyle = s3PathStyle })

	cfg = loaded
	return nil
}

// newLogger builds the run logger; every line carries the run id.
func newLogger() (*slog.Logger, error) {
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	return logger.With("run", uuid.NewString()), nil
}

// openWriter connects to the configured database.
func openWriter(ctx context.Context) (*sqldb.Writer, error) {
	conn, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}
	w, err := sqldb.Open(ctx, cfg.Driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return w, nil
}
