package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var getOutput string

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Download a document's stored content",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "output path ('-' for stdout; default: the document's file name)")
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	out := getOutput
	if out == "" {
		if entry, ok := a.registry.Get(id); ok && entry.Name != "" {
			out = entry.Name
		} else {
			out = id
		}
	}

	body, err := a.client.Download(ctx, id)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if out == "-" {
		_, err = io.Copy(os.Stdout, body)
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if !globalFlags.Quiet {
		fmt.Printf("wrote %s (%s)\n", out, formatSize(n))
	}
	return nil
}
