package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in as the configured user",
		Long: `Exchange the configured user id for an access token and store it.

A stored token that is still valid for the same user is reused.

Examples:
  homeai login --user u1
  homeai login --user u1 --platform ios --token-store redis`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			sess := client.Sessions.Current()
			view := sess
			view.AccessToken = ""

			return a.print(view, func(w io.Writer) error {
				fmt.Fprintf(w, "%s Logged in as %s (%s)\n", colorGreen("✓"), sess.UserID, sess.Platform)
				fmt.Fprintf(w, "  API:     %s\n", client.BaseURL())
				fmt.Fprintf(w, "  Expires: %s\n", formatTime(&sess.ExpiresAt))
				return nil
			})
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the current token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			me, err := client.Sessions.Me(cmd.Context())
			if err != nil {
				return err
			}

			return a.print(me, func(w io.Writer) error {
				fmt.Fprintf(w, "User:     %s\n", me.UserID)
				fmt.Fprintf(w, "Platform: %s\n", deref(me.Platform))
				fmt.Fprintf(w, "Expires:  %s\n", formatTime(me.ExpiresAt))
				return nil
			})
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored token and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.apiClient(ctx)
			if err != nil {
				return err
			}

			had := client.Sessions.Token() != ""
			err = client.Sessions.Logout(ctx)
			a.forget(ctx)
			if err != nil {
				return err
			}

			return a.print(map[string]bool{"revoked": had}, func(w io.Writer) error {
				if !had {
					fmt.Fprintln(w, "Not logged in")
					return nil
				}
				fmt.Fprintf(w, "%s Logged out\n", colorGreen("✓"))
				return nil
			})
		},
	}
}
