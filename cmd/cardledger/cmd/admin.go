package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Account administration",
	Long:  `Commands for listing and managing accounts. Requires an admin or super_admin account.`,
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List every account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return guarded(cmd, session.RequireElevated, func(ctx context.Context, p *portal.Portal) error {
			users, err := p.Users(ctx)
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), users)
		})
	},
}

func printUsers(w io.Writer, users []client.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tROLE\tVERIFIED\tSTATUS")
	for _, u := range users {
		status := u.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n", u.ID, u.Username, u.Role, u.IsVerified, status)
	}
	return tw.Flush()
}

var actionHelp = map[client.AdminAction]string{
	client.ActionVerify:        "Verify an account so it can upload and export",
	client.ActionPromote:       "Promote an account to admin",
	client.ActionDemote:        "Demote an admin to a regular user",
	client.ActionToggleSuspend: "Suspend or reinstate an account",
	client.ActionResetPassword: "Reset an account's password and print the new one",
}

func adminActionCmd(action client.AdminAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <user-id>",
		Short: actionHelp[action],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: invalid user id %q", client.ErrInvalidValue, args[0])
			}
			return guarded(cmd, session.RequireElevated, func(ctx context.Context, p *portal.Portal) error {
				res, users, err := p.AdminAction(ctx, id, action)
				var adminErr *portal.AdminError
				if err != nil && !(errors.As(err, &adminErr) && adminErr.Applied) {
					return err
				}
				out := cmd.OutOrStdout()
				if res.NewPassword != "" {
					fmt.Fprintf(out, "New password: %s\n", res.NewPassword)
				} else {
					fmt.Fprintf(out, "Applied %s to user %d.\n", action, id)
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
					return nil
				}
				return printUsers(out, users)
			})
		},
	}
}

func init() {
	adminCmd.AddCommand(adminUsersCmd)
	for _, action := range client.AdminActions {
		adminCmd.AddCommand(adminActionCmd(action))
	}
	rootCmd.AddCommand(adminCmd)
}
