package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/inventory"
	"github.com/rickyyue315/winmaxreturn/internal/report"
)

var (
	analyzeInput  string
	analyzeMode   string
	analyzeOutput string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one-shot analysis on a snapshot workbook and exit",
	Long: `Analyze reads an inventory snapshot workbook, evaluates the
return rules, and prints the result as JSON to stdout. With --output the
recommendation workbook is also written to the given path.

The run is archived when the archive is available. Exits non-zero when
the snapshot cannot be read or a quality check fails.`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "path to the snapshot workbook (required)")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "both", "analysis mode (both, nd_only, rf_only)")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "", "write the recommendation workbook to this path")
	analyzeCmd.MarkFlagRequired("input") //nolint:errcheck
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	defer app.Close()

	mode, err := analysis.ParseMode(analyzeMode)
	if err != nil {
		return err
	}

	f, err := os.Open(analyzeInput)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close() //nolint:errcheck

	records, err := inventory.ReadWorkbook(f, cfg.Analysis.SalesCap)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	result, err := app.engine.Run(ctx, records, mode)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if app.store != nil {
		if run, err := app.store.SaveRun(ctx, analyzeInput, result); err != nil {
			slog.Warn("archiving run failed", "err", err)
		} else {
			slog.Info("run archived", "id", run.ID)
		}
	}

	if analyzeOutput != "" {
		out, err := os.Create(analyzeOutput)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer out.Close() //nolint:errcheck
		if err := report.Write(out, result); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		slog.Info("report written", "path", analyzeOutput)
	}

	printJSON(result)

	for _, c := range result.Checks {
		if !c.OK {
			return fmt.Errorf("quality check failed: %s", c.Name)
		}
	}
	return nil
}
