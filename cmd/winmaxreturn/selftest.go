package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickyyue315/winmaxreturn/internal/launcher"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Exercise the analysis engine against the built-in fixture and exit",
	Long: `Selftest runs the same checks the launch sequence performs:
effective-sold selection, ND and RF rule evaluation, receive-site
routing, quality gates, and mode filtering. It prints the check results
as JSON and exits non-zero when any check fails.`,
	RunE: runSelftest,
}

func runSelftest(cmd *cobra.Command, args []string) error {
	defer app.Close()

	checks := launcher.SelfCheck(cmd.Context(), app.engine, cfg.Analysis.ReceiveSite)
	printJSON(checks)

	failed := 0
	for _, c := range checks {
		if !c.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d self-checks failed", failed, len(checks))
	}
	return nil
}
