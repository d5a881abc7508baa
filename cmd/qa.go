package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/qa"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	historyDoc   string
	historyLimit int
)

var askCmd = &cobra.Command{
	Use:   "ask <document-id> <question...>",
	Short: "Ask a question about a document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		question := strings.Join(args[1:], " ")
		// empty questions are rejected before the login check, like in the UI
		if strings.TrimSpace(question) != "" {
			if err := requireLogin(a); err != nil {
				return err
			}
		}
		ans, err := a.QA.Ask(cmd.Context(), question, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Q: %s\n", ans.Question)
		fmt.Fprintf(out, "A: %s\n", ans.Text)
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <document-id>",
	Short: "Summarize a whole document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}
		s, err := a.QA.Summarize(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if s.Filename != "" {
			fmt.Fprintf(out, "Summary of %s\n\n", s.Filename)
		}
		fmt.Fprintln(out, s.Text)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show question/answer history",
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
		recs, err := a.QA.History(cmd.Context(), historyDoc, historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), recs)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <qa-id>",
	Short: "Delete one history record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireLogin(a); err != nil {
			return err
		}
		if err := a.QA.DeleteHistory(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Record deleted: %s\n", args[0])
		return nil
	},
}

func printHistory(out io.Writer, recs []qa.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(out, "(no history)")
		return
	}
	for _, r := range recs {
		when := r.Timestamp.Raw
		if !r.Timestamp.IsZero() {
			when = humanize.Time(r.Timestamp.Time)
		}
		status := ""
		if !r.Success {
			status = " [failed]"
		}
		fmt.Fprintf(out, "- %s (%s)%s\n  Q: %s\n  A: %s\n", r.ID, when, status, r.Question, r.Answer)
	}
}

func init() {
	rootCmd.AddCommand(askCmd, summarizeCmd, historyCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.Flags().StringVarP(&historyDoc, "doc", "d", "", "only records of this document")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "maximum number of records")
}
