package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kbsync/internal/model"
)

var upCmd = &cobra.Command{
	Use:   "up <file>...",
	Short: "Upload documents and watch them through indexing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUp,
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	rejected := 0
	for _, path := range args {
		if _, err := a.orch.Submit(ctx, path); err != nil {
			rejected++
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", a.styles.errPrefix(), path, uploadErrText(err))
		}
	}
	if rejected == len(args) {
		exitWith(ExitUploadFailed, "no files accepted")
	}

	interactive := !globalFlags.JSON && !globalFlags.Quiet &&
		term.IsTerminal(int(os.Stdout.Fd())) && a.orch.Active()
	if interactive {
		interrupted, err := runProgressUI(a)
		switch {
		case err != nil:
			// fall back to waiting without the UI
			a.orch.Wait()
		case interrupted:
			// user quit mid-flight; abort the remaining uploads so no
			// half-registered server records leak
			a.orch.CancelAll()
		}
	} else {
		a.orch.Wait()
	}

	entries := a.registry.List()
	failed := 0
	for _, entry := range entries {
		if entry.Status == model.StatusError {
			failed++
		}
	}

	if globalFlags.JSON {
		out := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			out = append(out, map[string]any{
				"id":       entry.ID,
				"name":     entry.Name,
				"status":   string(entry.Status),
				"progress": entry.Progress,
				"error":    entry.ErrorMessage,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	} else if !interactive && !globalFlags.Quiet {
		for _, entry := range entries {
			line := fmt.Sprintf("%s  %s  %s", shortID(entry.ID), entry.Name, a.styles.status(entry.Status))
			if entry.ErrorMessage != "" {
				line += "  " + a.styles.dim(entry.ErrorMessage)
			}
			fmt.Println(line)
		}
	}

	if failed > 0 || rejected > 0 {
		exitWith(ExitUploadFailed, fmt.Sprintf("%d of %d documents failed", failed+rejected, len(args)))
	}
	return nil
}

func uploadErrText(err error) string {
	var se *model.ServiceError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
