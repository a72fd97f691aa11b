// Package cli implements the comepos command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/locie/comepos-fetcher/internal/config"
	"github.com/locie/comepos-fetcher/internal/core"
	"github.com/locie/comepos-fetcher/internal/fetch"
	"github.com/locie/comepos-fetcher/internal/progress"
	"github.com/locie/comepos-fetcher/internal/store"
	"github.com/locie/comepos-fetcher/internal/vesta"
)

// Global flags
var (
	verbose   bool
	quiet     bool
	storePath string
	maxRows   int
)

var log = logrus.New()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "comepos",
	Short:   "Fetch and cache COMEPOS building sensor data",
	Long:    `A command-line utility that fetches time-series sensor measurements from the Vesta Energy web service, caches them locally and exports them for analysis.`,
	Version: core.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(os.Stderr)
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		} else if quiet {
			log.SetLevel(logrus.ErrorLevel)
		} else {
			log.SetLevel(logrus.InfoLevel)
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
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Path of the local cache store (default: user config dir)")
	rootCmd.PersistentFlags().IntVar(&maxRows, "max-rows", 0, fmt.Sprintf("Max rows per history request (default %d)", core.MaxRowsPerRequest))
}

// loadConfig merges the configuration with command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}
	if maxRows > 0 {
		cfg.MaxRows = maxRows
	}
	return cfg, nil
}

// openStore opens the local cache store; callers must Close it.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.OpenSQLite(cfg.StorePath)
}

// newService builds the authenticated Vesta service. The returned client
// must be Closed to log the session out.
func newService(cfg *config.Config) (*vesta.Service, *vesta.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	client := vesta.NewClient(cfg.BaseURL, cfg.Username, cfg.Password, log)
	return vesta.NewService(client, log), client, nil
}

// reporter returns the progress reporter matching the quiet flag.
func reporter() progress.Reporter {
	if quiet {
		return progress.Nop{}
	}
	return progress.NewBar()
}

// buildingOptions are the fetch options every command shares.
func buildingOptions(cfg *config.Config) []fetch.Option {
	return []fetch.Option{
		fetch.WithLogger(log),
		fetch.WithReporter(reporter()),
		fetch.WithMaxRows(cfg.MaxRows),
	}
}
