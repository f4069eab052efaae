package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
)

var password string

// credentials takes the username from args and the password from the
// --password flag or, failing that, the first line of stdin.
func credentials(cmd *cobra.Command, args []string) (client.Credential, error) {
	cred := client.Credential{Username: args[0], Password: password}
	if cred.Password != "" {
		return cred, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return cred, fmt.Errorf("failed to read password: %w", err)
	}
	cred.Password = strings.TrimRight(line, "\r\n")
	if cred.Password == "" {
		return cred, errors.New("password is required")
	}
	return cred, nil
}

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := credentials(cmd, args)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.portal.Register(cmd.Context(), cred); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), portal.RegisteredMessage)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := credentials(cmd, args)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := a.portal.Login(cmd.Context(), cred)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s). Home: %s\n", u.Subject, u.Role, a.portal.Location())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.portal.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return guarded(cmd, session.RequireUser, func(_ context.Context, p *portal.Portal) error {
			u, _ := p.State().User()
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", u.Subject, u.Role)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().StringVar(&password, "password", "", "Password (read from stdin when omitted)")
	}
	rootCmd.AddCommand(registerCmd, loginCmd, logoutCmd, whoamiCmd)
}
