package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the assistant a question scoped to indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	// refresh so the scope reflects the server's current view; stale local
	// state must not widen or narrow the question
	if err := a.orch.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s refresh failed, using last-known scope: %s\n", a.styles.errPrefix(), err)
	}

	result, err := a.gateway().Ask(ctx, args[0])
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"answer":  result.Answer,
			"sources": result.Sources,
			"scope":   result.ScopeIDs,
		})
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println(a.styles.Header.Render("Sources:"))
		for _, src := range result.Sources {
			label := src.FileName
			if label == "" {
				label = src.DocumentID
			}
			fmt.Println(a.styles.kv(shortID(src.DocumentID), label))
		}
	}
	if len(result.ScopeIDs) == 0 && !globalFlags.Quiet {
		fmt.Fprintln(os.Stderr, a.styles.dim("note: no indexed documents yet; the answer used no document context"))
	}
	return nil
}
