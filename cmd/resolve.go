package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/provider-xref/internal/model"
	"github.com/sells-group/provider-xref/internal/pipeline"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run the full resolution pipeline",
	Long:  "Loads the three source extracts, resolves and reconciles provider identities, and atomically publishes the artifact tables. A failed run leaves previously published artifacts untouched.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if v, _ := cmd.Flags().GetString("medicare"); v != "" {
			cfg.Inputs.Medicare = v
		}
		if v, _ := cmd.Flags().GetString("pecos"); v != "" {
			cfg.Inputs.PECOS = v
		}
		if v, _ := cmd.Flags().GetString("open-payments"); v != "" {
			cfg.Inputs.OpenPayments = v
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		summary, err := pipeline.New(cfg, st).Run(ctx, dryRun)
		if summary != nil {
			printSummary(summary, dryRun)
		}
		return err
	},
}

func printSummary(s *model.RunSummary, dryRun bool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", s.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	if dryRun {
		_, _ = fmt.Fprintf(w, "Mode:\tdry run (not published)\n")
	}
	_, _ = fmt.Fprintf(w, "Entities:\t%d\n", s.EntityCount)
	_, _ = fmt.Fprintf(w, "Chains:\t%d\n", s.ChainCount)
	_, _ = fmt.Fprintf(w, "Payment rows:\t%d\n", s.PaymentCount)
	_, _ = fmt.Fprintf(w, "Multi-match ties:\t%d\n", s.MultiMatchCount)
	_, _ = fmt.Fprintf(w, "Name mismatch:\t%.2f%%\n", s.NameMismatchPct)
	if s.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", s.Error)
	}
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	_ = w.Flush()
}

func init() {
	resolveCmd.Flags().String("medicare", "", "path to the Medicare utilization CSV (overrides config)")
	resolveCmd.Flags().String("pecos", "", "path to the PECOS enrollment CSV (overrides config)")
	resolveCmd.Flags().String("open-payments", "", "path to the Open Payments general payments CSV (overrides config)")
	resolveCmd.Flags().Bool("dry-run", false, "run every stage but skip publishing")

	rootCmd.AddCommand(resolveCmd)
}
