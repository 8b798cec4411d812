// Command dashctl is a command-line client for the dashboard API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/structsense/dashboard/client"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultAPI = "http://localhost:8000"

var (
	apiURL    string
	tokenFile string
	verbose   bool
	timeout   time.Duration

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dashctl",
	Short: "Command-line client for the structural monitoring dashboard",
	Long: `dashctl talks to the dashboard resource API.

Log in once with 'dashctl login'; the access token is stored in
~/.dashctl/token and sent with every later command until it expires.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zapcore.WarnLevel
		if verbose {
			level = zapcore.DebugLevel
		}
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		var err error
		logger, err = config.Build()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("DASHCTL_API", defaultAPI), "API base URL (or set DASHCTL_API)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Token file (default: ~/.dashctl/token)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(readingsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newClient builds an API client, attaching the stored token when there is one
func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if token, err := loadToken(); err == nil {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(apiURL, opts...)
}

// authedClient is newClient for commands that cannot run without a token
func authedClient() (*client.Client, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	if c.Token() == "" {
		return nil, fmt.Errorf("not logged in: run 'dashctl login' first")
	}
	return c, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// explain turns a 401 into a hint to log in again
func explain(err error) error {
	if client.IsUnauthorized(err) {
		return fmt.Errorf("%w (session expired? run 'dashctl login')", err)
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
