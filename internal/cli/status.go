package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Refresh from the server and show every document's state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.orch.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s refresh failed, showing last-known state: %s\n", a.styles.errPrefix(), err)
	}

	entries := a.registry.List()
	if globalFlags.JSON {
		out := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			out = append(out, map[string]any{
				"id":           entry.ID,
				"name":         entry.Name,
				"size_bytes":   entry.SizeBytes,
				"submitted_at": entry.SubmittedAt,
				"status":       string(entry.Status),
				"progress":     entry.Progress,
				"error":        entry.ErrorMessage,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(entries) == 0 {
		fmt.Println("No documents. Run 'kbsync up <file>' to add one.")
		return nil
	}

	fmt.Printf("%-14s %-30s %-10s %-10s %-9s %s\n", "ID", "NAME", "SIZE", "STATUS", "PROGRESS", "DETAIL")
	for _, entry := range entries {
		name := entry.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		fmt.Printf("%-14s %-30s %-10s %-10s %-9s %s\n",
			shortID(entry.ID),
			name,
			formatSize(entry.SizeBytes),
			a.styles.status(entry.Status),
			fmt.Sprintf("%d%%", entry.Progress),
			a.styles.dim(entry.ErrorMessage),
		)
	}
	return nil
}
