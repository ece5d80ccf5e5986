package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"golang-invoice-dedup-service/cmd/dupdetect/config"
	"golang-invoice-dedup-service/internal/parsers"
	"golang-invoice-dedup-service/internal/store"
	apperrors "golang-invoice-dedup-service/pkg/errors"
)

var (
	scenarioSourceFile string
	scenarioSourceDB   string
	scenarioTargetDB   string
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List and validate detection scenarios",
	Long: `Scenarios loads scenario definitions from a file or a SQLite database,
validates them and prints them as a table. Invalid scenarios are listed
with the reason and make the command fail.

Examples:
  dupdetect scenarios --scenarios scenarios.yaml
  dupdetect scenarios --scenario-db dupdetect.db
  dupdetect scenarios import --scenarios scenarios.toml --db dupdetect.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listScenarios(contextOf(cmd), cmd.OutOrStdout(), scenarioSourceFile, scenarioSourceDB)
	},
}

var scenariosImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy scenarios from a file into the SQLite scenarios table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return importScenarios(contextOf(cmd), cmd.OutOrStdout(), scenarioSourceFile, scenarioTargetDB)
	},
}

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.AddCommand(scenariosImportCmd)

	scenariosCmd.PersistentFlags().StringVarP(&scenarioSourceFile, "scenarios", "s", "", "scenario file (.yaml, .yml, .toml, .json)")
	scenariosCmd.Flags().StringVar(&scenarioSourceDB, "scenario-db", "", "SQLite database holding the scenarios table")
	scenariosImportCmd.Flags().StringVar(&scenarioTargetDB, "db", "", "SQLite database to write the scenarios to (required)")
	scenariosImportCmd.MarkFlagRequired("db")
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func listScenarios(ctx context.Context, w io.Writer, path, dbPath string) error {
	scenarios, err := config.LoadScenarios(ctx, path, dbPath)
	if err != nil {
		return err
	}

	errs := config.ValidateScenarios(scenarios)
	invalid := make(map[int]bool, len(errs))
	for _, err := range errs {
		if se, ok := err.(*config.ScenarioError); ok {
			invalid[se.ScenarioID] = true
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGROUPING COLUMNS\tCOMPARE\tTHRESHOLD\tSUPPLIER\tSTATUS")
	for _, s := range scenarios {
		d := s.WithDefaults()
		status := "ok"
		switch {
		case invalid[s.ScenarioID]:
			status = "invalid"
		case s.Disabled:
			status = "disabled"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.0f\t%s\t%s\n",
			s.ScenarioID, s.Name, strings.Join(s.GroupingColumns, ","), d.CompareColumn,
			d.ScoreThreshold, d.SupplierMatching, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(errs) > 0 {
		fmt.Fprintf(w, "\n%s\n", FormatValidationErrors(errs))
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "scenarios", len(errs),
			fmt.Errorf("%d of %d scenarios are invalid", len(errs), len(scenarios)))
	}
	return nil
}

func importScenarios(ctx context.Context, w io.Writer, path, dbPath string) error {
	if strings.TrimSpace(path) == "" {
		return apperrors.ConfigurationError(apperrors.CodeMissingConfig, "scenarios", nil,
			fmt.Errorf("a scenario file is required")).
			WithSuggestion("Pass --scenarios <file>")
	}

	scenarios, err := parsers.LoadScenarioFile(path)
	if err != nil {
		return err
	}
	if errs := config.ValidateScenarios(scenarios); len(errs) > 0 {
		fmt.Fprintf(w, "%s\n", FormatValidationErrors(errs))
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "scenarios", len(errs),
			fmt.Errorf("refusing to import invalid scenarios"))
	}

	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveScenarios(ctx, scenarios); err != nil {
		return err
	}
	fmt.Fprintf(w, "Imported %d scenarios into %s\n", len(scenarios), dbPath)
	return nil
}
