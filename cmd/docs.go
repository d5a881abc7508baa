package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/KaramelBytes/docqa-cli/internal/documents"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var deleteYes bool

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your documents",
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
		docs, err := a.Library.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		printDocuments(cmd.OutOrStdout(), docs)
		return nil
	},
}

var docsShowCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show one document",
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
		d, err := a.Documents.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "document_id: %s\n", d.ID)
		fmt.Fprintf(out, "filename: %s\n", d.Filename)
		fmt.Fprintf(out, "file_size: %s\n", humanize.IBytes(uint64(d.FileSize)))
		fmt.Fprintf(out, "chunks: %d\n", d.ChunksCount)
		fmt.Fprintf(out, "uploaded_at: %s\n", stamp(d.UploadedAt))
		return nil
	},
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a PDF, DOCX or TXT file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		// local checks run before the login check so bad files fail without a session
		f, err := documents.FileFromPath(args[0])
		if err != nil {
			return err
		}
		if err := documents.Validate(f); err != nil {
			return err
		}
		if err := requireLogin(a); err != nil {
			return err
		}
		d, err := a.Library.Upload(cmd.Context(), f)
		if err != nil && d == nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Document uploaded: %s (%s, %d chunks) id=%s\n", d.Filename, humanize.IBytes(uint64(d.FileSize)), d.ChunksCount, d.ID)
		return err
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document",
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
		ctx := cmd.Context()
		// the confirmation prompt can name the file only when the list is loaded
		if _, err := a.Library.Refresh(ctx); err != nil {
			return err
		}
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		deleted, err := a.Library.Delete(ctx, args[0], func(d documents.Document) bool {
			return deleteYes || confirm(in, out, fmt.Sprintf("Delete %s?", docLabel(d)))
		})
		if err != nil && !deleted {
			return err
		}
		if !deleted {
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
		fmt.Fprintf(out, "✓ Document deleted: %s\n", args[0])
		return err
	},
}

func docLabel(d documents.Document) string {
	if d.Filename == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Filename, d.ID)
}

func printDocuments(out io.Writer, docs []documents.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(out, "(no documents)")
		return
	}
	for _, d := range docs {
		fmt.Fprintf(out, "- %s: %s (%s, %d chunks, uploaded %s)\n",
			d.ID, d.Filename, humanize.IBytes(uint64(d.FileSize)), d.ChunksCount, uploadedAgo(d))
	}
}

func stamp(t gateway.Time) string {
	if t.IsZero() {
		return t.Raw
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func uploadedAgo(d documents.Document) string {
	if d.UploadedAt.IsZero() {
		return d.UploadedAt.Raw
	}
	return humanize.Time(d.UploadedAt.Time)
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsUploadCmd, docsDeleteCmd)
	docsDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}
