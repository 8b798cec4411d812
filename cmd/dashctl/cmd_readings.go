package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/structsense/dashboard/client"
	"github.com/structsense/dashboard/internal/poller"
	"github.com/structsense/dashboard/models"
	"go.uber.org/zap"
)

var (
	readingsLimit    int
	readingsStatus   string
	readingsLive     bool
	readingsInterval time.Duration
)

// readingsCmd prints processed readings for a device
var readingsCmd = &cobra.Command{
	Use:   "readings <device-id>",
	Short: "Show processed readings for a device",
	Long: `Show the newest processed readings for a device.

With --live the command keeps polling and prints readings as they arrive
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runReadings,
}

func init() {
	readingsCmd.Flags().IntVarP(&readingsLimit, "limit", "n", 20, "Maximum readings to show")
	readingsCmd.Flags().StringVarP(&readingsStatus, "status", "s", "", "Only show SAFE, WARNING or ALERT readings")
	readingsCmd.Flags().BoolVar(&readingsLive, "live", false, "Keep polling for new readings")
	readingsCmd.Flags().DurationVar(&readingsInterval, "interval", 5*time.Second, "Polling interval with --live")
}

func runReadings(cmd *cobra.Command, args []string) error {
	id, err := parseDeviceID(args[0])
	if err != nil {
		return err
	}

	query := client.ReadingsQuery{Limit: readingsLimit}
	if readingsStatus != "" {
		status, err := models.ParseReadingStatus(readingsStatus)
		if err != nil {
			return err
		}
		query.Status = status
	}

	c, err := authedClient()
	if err != nil {
		return err
	}

	if !readingsLive {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		readings, err := c.ProcessedReadings(ctx, id, query)
		if err != nil {
			return explain(err)
		}
		if len(readings) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No readings")
			return nil
		}
		return printReadings(cmd.OutOrStdout(), readings)
	}

	tail := &readingTail{client: c, deviceID: id, query: query, out: cmd.OutOrStdout()}
	return watch(cmd, "readings", readingsInterval, tail.poll)
}

// readingTail prints readings newer than the last one it has shown
type readingTail struct {
	client   *client.Client
	deviceID int64
	query    client.ReadingsQuery
	out      io.Writer

	mu     sync.Mutex
	lastID int64
}

func (t *readingTail) poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	readings, err := t.client.ProcessedReadings(ctx, t.deviceID, t.query)
	if err != nil {
		return explain(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make([]*models.ProcessedReading, 0, len(readings))
	for _, r := range readings {
		if r.ID > t.lastID {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	// API order is newest first; print oldest first so the tail reads downwards.
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	t.lastID = fresh[len(fresh)-1].ID
	return printReadings(t.out, fresh)
}

func printReadings(w io.Writer, readings []*models.ProcessedReading) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSTATUS\tTILT %\tDIST %\tTILT X/Y/Z\tDIST MM")
	for _, r := range readings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.2f\t%.3f/%.3f/%.3f\t%.2f\n",
			r.ID, r.CreatedAt.Local().Format(time.RFC3339), r.Status,
			r.TiltChangePercent, r.DistanceChangePercent,
			r.TiltDiffX, r.TiltDiffY, r.TiltDiffZ, r.DistanceDiffMM)
	}
	return tw.Flush()
}

// watch runs task every interval until the command context is cancelled.
// A 401 stops the watch, since every later poll would fail the same way.
func watch(cmd *cobra.Command, name string, interval time.Duration, task poller.Task) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var authErr error
	p := poller.New(name, interval, func(ctx context.Context) error {
		err := task(ctx)
		if err == nil {
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
		if client.IsUnauthorized(err) {
			authErr = err
			cancel()
		}
		return err
	}, poller.WithImmediateRun(), poller.WithLogger(logger))

	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.Stop()

	stats := p.Stats()
	logger.Debug("watch stopped",
		zap.String("name", name),
		zap.Uint64("runs", stats.Runs),
		zap.Uint64("failures", stats.Failures))

	return authErr
}
