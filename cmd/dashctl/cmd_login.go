package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

// loginCmd exchanges credentials for an access token
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the access token",
	Long: `Log in with email and password. The password is read from --password,
DASHCTL_PASSWORD, or standard input, in that order.`,
	RunE: runLogin,
}

// logoutCmd forgets the stored token
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := removeToken(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", os.Getenv("DASHCTL_EMAIL"), "Account email (or set DASHCTL_EMAIL)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginEmail == "" {
		return fmt.Errorf("--email is required")
	}

	password := loginPassword
	if password == "" {
		password = os.Getenv("DASHCTL_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	token, err := c.Login(ctx, loginEmail, password)
	if err != nil {
		return err
	}
	if err := saveToken(token.AccessToken); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (token expires %s)\n",
		loginEmail, token.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}
