package main

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"derp/pkg/catalog"
	"derp/pkg/config"
	"derp/pkg/governor"
	"derp/pkg/logger"
	"derp/pkg/ui"
	"derp/pkg/wayback"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	dbPath     string
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "derp",
	Short: "Discover and fetch archived web captures from the Wayback Machine",
	Long: `derp crawls the Wayback Machine for archived captures of pages that
mention the configured search phrases, restricted to a fixed date
window. Discovered captures land in a local catalog; their page bodies
can then be fetched, analyzed for phrase and media matches, and
exported.

All archive traffic flows through one adaptive rate governor, so
discovery and fetching share the same polite request budget no matter
how many workers run.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.Quiet = true
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./derp.yaml or $HOME/.derp.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "database", "", "path to the catalog database")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`derp {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// app bundles the long-lived pieces every command needs: the loaded
// config, the open catalog database, and the shared governor-backed
// archive client.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	catalog  *catalog.Catalog
	governor *governor.Governor
	client   *wayback.Client
}

// loadConfig layers defaults, config file, environment, and the
// global flags, then initializes logging.
func loadConfig() (*config.Config, error) {
	flags := map[string]interface{}{}
	if dbPath != "" {
		flags["database"] = dbPath
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp wires the shared components. The caller must Close it.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := catalog.Open(cfg.Storage.Database)
	if err != nil {
		return nil, err
	}

	from, to := cfg.DateWindow()
	log := logger.GetLogger()
	cat := catalog.New(db, from, to, log)
	gov := governor.New(cfg.RateLimit, log)
	client := wayback.NewClient(cfg.Wayback, gov, cat, log)

	return &app{
		cfg:      cfg,
		db:       db,
		catalog:  cat,
		governor: gov,
		client:   client,
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
