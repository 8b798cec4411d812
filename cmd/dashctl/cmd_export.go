package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	exportOut  string
	exportFrom string
	exportTo   string
)

// exportCmd downloads a device's readings as CSV
var exportCmd = &cobra.Command{
	Use:   "export <device-id>",
	Short: "Download a device's readings as CSV",
	Long: `Download a device's processed readings as CSV.

By default the file is written to the current directory under the name the
server suggests. Use --out - to write to standard output.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file, or - for stdout")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start time (RFC 3339)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End time (RFC 3339)")
}

func runExport(cmd *cobra.Command, args []string) error {
	id, err := parseDeviceID(args[0])
	if err != nil {
		return err
	}
	from, err := parseTimeFlag("from", exportFrom)
	if err != nil {
		return err
	}
	to, err := parseTimeFlag("to", exportTo)
	if err != nil {
		return err
	}

	c, err := authedClient()
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if exportOut == "-" {
		_, _, err := c.Export(ctx, id, from, to, cmd.OutOrStdout())
		return explain(err)
	}

	// Download into a temp file first so a failed export leaves nothing behind.
	dir := "."
	if exportOut != "" {
		dir = filepath.Dir(exportOut)
	}
	tmp, err := os.CreateTemp(dir, ".dashctl-export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	name, n, err := c.Export(ctx, id, from, to, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return explain(err)
	}

	dest := exportOut
	if dest == "" {
		dest = filepath.Join(dir, filepath.Base(name))
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", n, dest)
	return nil
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}
