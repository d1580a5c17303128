package commands

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dimajoyti/ape/internal/estimator/application"
	"github.com/dimajoyti/ape/internal/estimator/config"
	"github.com/dimajoyti/ape/internal/estimator/estimator"
	"github.com/dimajoyti/ape/internal/estimator/postgres"
	"github.com/dimajoyti/ape/pkg/logger"
	"github.com/dimajoyti/ape/pkg/monitoring"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	db      *sql.DB
	opt     *application.Optimizer

	version   = "1.0.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// rootCmd is the base command when ape-cli is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "ape-cli",
	Short: "Command-line client for the Adaptive Parallelism Estimator",
	Long: `ape-cli drives the Estimator's predict and report operations directly
against Postgres, and applies the State Store's schema migrations.

Examples:
  ape-cli predict --task ingest --input-quantity 5000 --cluster-load 0.4
  ape-cli report --task ingest --s 8 --gamma 2.5 --cluster-load 0.4 --t-actual 212.5
  ape-cli migrate up`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeApp()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./cmd/ape-server/config, ./config and .)")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func initializeApp() error {
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
		cfg = &config.Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("loading configuration from %s: %w", cfgFile, err)
		}
	}

	log = logger.New("ape-cli")

	db, err = sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("opening database connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	store := postgres.New(db, log)
	promMetrics := monitoring.NewPrometheusMetrics()
	metrics := monitoring.NewEstimatorMetrics(promMetrics)

	est := estimator.New(store, log, metrics)
	est.HistoryWindow = cfg.Estimator.HistoryWindow
	est.CalibrationHistoryLimit = cfg.Estimator.CalibrationHistoryLimit
	est.CalibrationS = cfg.Estimator.CalibrationS
	est.MaxRetries = cfg.Estimator.MaxRetries
	est.SaturatedSearchSpace = cfg.Estimator.SaturatedSearchSpace
	est.SearchSpaceFloor = cfg.Estimator.SearchSpaceFloor
	est.SearchSpaceScale = cfg.Estimator.SearchSpaceScale

	opt = application.New(est, log)

	return nil
}

func cleanup() {
	if db != nil {
		db.Close()
	}
}

// SetVersionInfo sets version information from main.
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print ape-cli version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ape-cli v%s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Git Commit: %s\n", gitCommit)
	},
}
