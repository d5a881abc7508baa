package cmd

import (
	"fmt"
	"io"

	"github.com/KaramelBytes/docqa-cli/internal/dashboard"
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show document and question totals with recent activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}
		st, err := a.Dashboard.Load(cmd.Context())
		if err != nil {
			return err
		}
		printStats(cmd.OutOrStdout(), st)
		return nil
	},
}

func printStats(out io.Writer, st dashboard.Stats) {
	fmt.Fprintf(out, "Documents: %d\n", st.TotalDocuments)
	fmt.Fprintf(out, "Questions: %d\n", st.TotalQuestions)
	fmt.Fprintln(out, "Recent activity:")
	printHistory(out, st.RecentActivity)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		h, err := a.Gateway.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s (version %s)\n", a.Gateway.BaseURL(), h.Status, h.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd, healthCmd)
}
