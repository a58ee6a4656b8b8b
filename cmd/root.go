package cmd

import (
	"fmt"

	"github.com/bypabloc/portfolio-db/internal/config"
	"github.com/bypabloc/portfolio-db/internal/errs"
	"github.com/bypabloc/portfolio-db/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	Version = "0.3.1"
)

var rootCmd = &cobra.Command{
	Use:   "portfolio-db",
	Short: "Declarative schema and seed orchestration for the portfolio database",
	Long: `portfolio-db loads the declarative table and seed definitions, resolves
their foreign-key dependency order, applies the seeds idempotently and
runs the declared verification tests.

Commands:
  plan    load declarations and print the application order (no writes)
  apply   seed the database in dependency order
  verify  run the verification tests against already-seeded data
  run     apply, then verify

Exit codes: 0 success, 1 seeding failure, 2 verification failure,
3 invalid or cyclic declarations.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		showVersion, _ := cmd.Flags().GetBool("version")
		if showVersion {
			fmt.Printf("portfolio-db version %s\n", Version)
			return
		}
		cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps an Execute error onto the documented process exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch errs.KindOf(err) {
	case errs.KindSchemaValidation, errs.KindCyclicDependency:
		return 3
	case errs.KindVerificationFailure:
		return 2
	default:
		return 1
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./portfolio-db.config.json)")
	rootCmd.Flags().BoolP("version", "v", false, "Show CLI version")
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env.local")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("json")
		viper.SetConfigName("portfolio-db.config")
	}

	viper.AutomaticEnv()
	viper.ReadInConfig()
}

// loadConfig builds the validated Config plus the logger every command
// shares.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	return cfg, log, nil
}
