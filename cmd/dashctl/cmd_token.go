package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/structsense/dashboard/internal/session"
	"github.com/structsense/dashboard/tokens"
)

// tokenCmd groups commands for the stored access token
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the stored access token",
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Show whether a token is expired and who it belongs to",
	Long: `Inspect decodes the token payload locally, without contacting the API
and without verifying the signature. With no argument the stored token is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTokenInspect,
}

var tokenPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the stored token, e.g. for use with curl",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := loadToken()
		if err != nil {
			return fmt.Errorf("no stored token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenInspectCmd)
	tokenCmd.AddCommand(tokenPrintCmd)
}

func runTokenInspect(cmd *cobra.Command, args []string) error {
	var raw string
	if len(args) == 1 {
		raw = args[0]
	} else if stored, err := loadToken(); err == nil {
		raw = stored
	}

	now := time.Now()
	inspection := session.Inspect(raw, now)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "State:\t%s\n", inspection.State)
	if !inspection.ExpiresAt.IsZero() {
		fmt.Fprintf(tw, "Expires:\t%s (%s)\n",
			inspection.ExpiresAt.Local().Format(time.RFC3339), relative(inspection.ExpiresAt, now))
	}
	if inspection.Err != nil {
		fmt.Fprintf(tw, "Reason:\t%v\n", inspection.Err)
	}
	if claims, err := tokens.ExtractClaims(raw); err == nil {
		fmt.Fprintf(tw, "Subject:\t%s\n", claims.Sub)
		fmt.Fprintf(tw, "Email:\t%s\n", claims.Email)
		fmt.Fprintf(tw, "Role:\t%s\n", claims.Role)
		fmt.Fprintf(tw, "Issuer:\t%s\n", claims.Issuer)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !inspection.Valid() {
		return fmt.Errorf("token is %s", inspection.State)
	}
	return nil
}

func relative(t, now time.Time) string {
	d := t.Sub(now).Round(time.Second)
	if d > 0 {
		return "in " + d.String()
	}
	return (-d).String() + " ago"
}
