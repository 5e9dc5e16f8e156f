package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zippro/homeai"
)

func newCreditsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show the configured user's credit balance and plan",
		Long: `Show the credit balance, entitlement and effective plan without fetching
the full bootstrap.

Examples:
  homeai credits --user u1
  homeai credits --user u1 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, userID, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			profile, err := client.Account.Profile(cmd.Context(), userID)
			if err != nil {
				return err
			}

			return a.print(profile, func(w io.Writer) error {
				credits := "-"
				if balance, ok := profile.Balance(); ok {
					credits = fmt.Sprint(balance)
				}
				fmt.Fprintf(w, "User:        %s\n", profile.UserID)
				fmt.Fprintf(w, "Credits:     %s\n", credits)
				if profile.EffectivePlan != nil {
					fmt.Fprintf(w, "Plan:        %s\n", profile.EffectivePlan.DisplayName)
				}
				if profile.Entitlement != nil {
					fmt.Fprintf(w, "Entitlement: %s via %s\n", profile.Entitlement.Status, profile.Entitlement.Source)
				}
				fmt.Fprintf(w, "Next reset:  %s\n", formatTime(profile.NextCreditResetAt))
				return nil
			})
		},
	}
}

func newCheckoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout <plan-id>",
		Short: "Start a web checkout for a plan",
		Long: `Create a hosted web checkout session and print the URL to complete it.

Examples:
  homeai checkout pro --user u1 --success-url https://app.example.com/ok --cancel-url https://app.example.com/cancel`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(a.cfg.Session.UserID)
			if userID == "" {
				return errNoUser
			}
			successURL, _ := cmd.Flags().GetString("success-url")
			cancelURL, _ := cmd.Flags().GetString("cancel-url")
			req := homeai.CheckoutRequest{
				UserID:     userID,
				PlanID:     strings.TrimSpace(args[0]),
				SuccessURL: successURL,
				CancelURL:  cancelURL,
			}
			if err := req.Validate(); err != nil {
				return err
			}

			client, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			sess, err := client.Account.Checkout(cmd.Context(), req)
			if err != nil {
				return err
			}

			return a.print(sess, func(w io.Writer) error {
				fmt.Fprintf(w, "%s Checkout %s created (%s)\n", colorGreen("✓"), sess.SessionID, sess.Provider)
				fmt.Fprintf(w, "Open: %s\n", sess.CheckoutURL)
				return nil
			})
		},
	}
	cmd.Flags().String("success-url", "", "URL to return to after payment (required)")
	cmd.Flags().String("cancel-url", "", "URL to return to when payment is abandoned (required)")
	return cmd
}
