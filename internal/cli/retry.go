package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kbsync/internal/model"
)

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-run indexing for a failed document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.orch.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	id := args[0]
	if err := a.orch.Retry(ctx, id); err != nil {
		return err
	}
	a.orch.Wait()

	entry, ok := a.registry.Get(id)
	if !ok {
		return fmt.Errorf("document %s disappeared during retry", id)
	}
	if !entry.Status.Terminal() {
		fmt.Printf("%s is still processing; run 'kbsync status' later\n", entry.Name)
		return nil
	}
	if entry.Status == model.StatusError {
		exitWith(ExitGenericError, fmt.Sprintf("retry failed: %s", entry.ErrorMessage))
	}
	fmt.Printf("%s %s indexed\n", a.styles.Success.Render("OK"), entry.Name)
	return nil
}
