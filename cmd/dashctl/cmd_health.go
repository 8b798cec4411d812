package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/structsense/dashboard/client"
	"github.com/structsense/dashboard/services/health"
)

var (
	healthWatch    bool
	healthInterval time.Duration
)

// healthCmd reports server health; it needs no login
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show API health",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().BoolVarP(&healthWatch, "watch", "w", false, "Keep checking until interrupted")
	healthCmd.Flags().DurationVar(&healthInterval, "interval", 10*time.Second, "Check interval with --watch")
}

func runHealth(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	if healthWatch {
		return watch(cmd, "health", healthInterval, func(ctx context.Context) error {
			_, err := checkHealth(ctx, c, cmd.OutOrStdout())
			return err
		})
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	snap, err := checkHealth(ctx, c, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if !snap.Healthy() {
		return fmt.Errorf("server is %s", snap.Status)
	}
	return nil
}

func checkHealth(ctx context.Context, c *client.Client, w io.Writer) (*health.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap, err := c.Health(ctx)
	if err != nil {
		return nil, err
	}

	line := fmt.Sprintf("%s  status=%s database=%s redis=%s",
		time.Now().Format(time.TimeOnly), snap.Status, snap.Database, snap.Redis)
	if snap.Error != "" {
		line += " error=" + snap.Error
	}
	fmt.Fprintln(w, line)
	return snap, nil
}
