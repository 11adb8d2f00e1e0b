package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete documents from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	var firstErr error
	for _, id := range args {
		name := id
		if entry, ok := a.registry.Get(id); ok {
			name = entry.Name
		}
		if err := a.orch.Delete(ctx, id); err != nil {
			fmt.Printf("%s %s: %s\n", a.styles.errPrefix(), name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !globalFlags.Quiet {
			fmt.Printf("deleted %s\n", name)
		}
	}
	return firstErr
}
