package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/raaihank/flowpaste/internal/config"
	"github.com/raaihank/flowpaste/internal/logger"
	"github.com/raaihank/flowpaste/internal/privacy"
	"github.com/raaihank/flowpaste/internal/rules"
	"github.com/spf13/cobra"
)

var (
	mappingPath    string
	writeMapping   string
	customPattern  string
	customTemplate string
)

var scanCmd = &cobra.Command{
	Use:   "scan [text|-]",
	Short: "Detect personal data and print the items as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		detector, err := newDetector()
		if err != nil {
			return err
		}
		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		return printJSON(cmd, detector.Scan(text))
	},
}

var maskCmd = &cobra.Command{
	Use:   "mask [text|-]",
	Short: "Replace personal data with placeholders",
	Long:  "Prints the masked text. With --mapping-out the placeholder mapping is written to a file for a later restore; otherwise the full result is printed as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		detector, err := newDetector()
		if err != nil {
			return err
		}
		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}

		result := detector.Mask(text)
		if writeMapping == "" {
			return printJSON(cmd, result)
		}

		data, err := json.MarshalIndent(result.Mapping, "", "  ")
		if err != nil {
			return err
		}
		// The mapping holds the original values
		if err := os.WriteFile(writeMapping, data, 0o600); err != nil {
			return fmt.Errorf("failed to write mapping: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), result.Masked)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [text|-]",
	Short: "Put the original values back into masked text",
	RunE: func(cmd *cobra.Command, args []string) error {
		if mappingPath == "" {
			return fmt.Errorf("--mapping is required")
		}
		data, err := os.ReadFile(mappingPath)
		if err != nil {
			return fmt.Errorf("failed to read mapping: %w", err)
		}
		var mapping privacy.MaskMapping
		if err := json.Unmarshal(data, &mapping); err != nil {
			return fmt.Errorf("failed to parse mapping: %w", err)
		}

		text, err := readInput(cmd, args)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), privacy.Restore(text, mapping))
		return nil
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List and apply formatting rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and configured rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBUILTIN\tDESCRIPTION")
		for _, r := range executor.List() {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", r.ID, r.Name, r.IsBuiltin, r.Description)
		}
		return w.Flush()
	},
}

var rulesApplyCmd = &cobra.Command{
	Use:   "apply <rule-id> [text|-]",
	Short: "Apply a rule, or an ad-hoc --pattern, to text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		executor, err := newExecutor()
		if err != nil {
			return err
		}
		text, err := readInput(cmd, args[1:])
		if err != nil {
			return err
		}

		var out string
		if customPattern != "" {
			out, err = executor.ApplyCustom(text, rules.Rule{ID: args[0], Pattern: customPattern, Replacement: customTemplate})
		} else {
			out, err = executor.Apply(text, args[0])
		}
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	maskCmd.Flags().StringVar(&writeMapping, "mapping-out", "", "Write the placeholder mapping to this file")
	restoreCmd.Flags().StringVarP(&mappingPath, "mapping", "m", "", "Mapping file written by mask --mapping-out")
	rulesApplyCmd.Flags().StringVar(&customPattern, "pattern", "", "Ad-hoc regex pattern instead of a registered rule")
	rulesApplyCmd.Flags().StringVar(&customTemplate, "replacement", "", "Replacement template for --pattern")

	rulesCmd.AddCommand(rulesListCmd, rulesApplyCmd)
}

func newDetector() (*privacy.Detector, error) {
	cfg, log, err := bootstrap()
	if err != nil {
		return nil, err
	}
	return privacy.New(cfg.Privacy, log.WithComponent("privacy").Logger)
}

func newExecutor() (*rules.Executor, error) {
	cfg, log, err := bootstrap()
	if err != nil {
		return nil, err
	}
	return executorFor(cfg, log), nil
}

func executorFor(cfg *config.Config, log *logger.Logger) *rules.Executor {
	return rules.FromConfig(cfg.Rules, log.WithComponent("rules").Logger)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
