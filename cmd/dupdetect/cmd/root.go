package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apperrors "golang-invoice-dedup-service/pkg/errors"
	"golang-invoice-dedup-service/pkg/logger"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logLevel  string
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dupdetect",
	Short: "Duplicate invoice detection tool",
	Long: `Dupdetect finds groups of likely duplicate supplier invoices in an
invoice extract. Records are bucketed per scenario, compared pairwise on
their invoice numbers and merged into duplicate groups. Reversal documents
are linked to the invoices they cancel.

Examples:
  dupdetect detect --input invoices.csv --scenarios scenarios.yaml
  dupdetect detect --input invoices.csv --scenario-db dupdetect.db --output-format json
  dupdetect compare "INV-1001 (COPY)" inv-1001
  dupdetect scenarios --scenarios scenarios.toml`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in the dotenv file, config file and ENV variables.
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error reading env file: %s\n", err)
			os.Exit(1)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("DUPDETECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// setupLogging replaces the global logger according to --log-level and
// --log-format. Verbose mode raises the level to info.
func setupLogging() error {
	config := logger.DefaultConfig()
	config.Level = logger.Level(viper.GetString("log-level"))
	config.Format = logger.Format(viper.GetString("log-format"))
	config.Output = logger.StderrOutput
	if viper.GetBool("verbose") && config.Level != logger.DebugLevel {
		config.Level = logger.InfoLevel
	}

	log, err := logger.NewLogger(config)
	if err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "log-level", config.Level, err).
			WithSuggestion("Use --log-level debug|info|warn|error and --log-format text|json")
	}
	logger.SetGlobalLogger(log)
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
