package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newDiscoverCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the before/after showcase feed",
		Long: `List the discover feed, optionally filtered to one tab.

Examples:
  homeai discover
  homeai discover --tab Garden`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			tab, _ := cmd.Flags().GetString("tab")

			feed, err := client.Discover.Feed(cmd.Context(), tab)
			if err != nil {
				return err
			}

			return a.print(feed, func(w io.Writer) error {
				fmt.Fprintf(w, "Tabs: %s\n\n", strings.Join(feed.Tabs, " | "))
				if len(feed.Sections) == 0 {
					fmt.Fprintln(w, "No items found")
					return nil
				}
				t := newTable(w)
				printTableHeader(t, "SECTION", "ID", "TITLE", "CATEGORY")
				for _, sec := range feed.Sections {
					for _, it := range sec.Items {
						fmt.Fprintf(t, "%s\t%s\t%s\t%s\n", sec.Title, it.ID, it.Title, it.Category)
					}
				}
				return t.Flush()
			})
		},
	}

	cmd.Flags().String("tab", "", "only show items of this tab, e.g. Home or Garden")
	return cmd
}

func newCatalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List subscription plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			plans, err := client.Catalog.List(cmd.Context())
			if err != nil {
				return err
			}

			return a.print(plans, func(w io.Writer) error {
				if len(plans) == 0 {
					fmt.Fprintln(w, "No plans found")
					return nil
				}
				t := newTable(w)
				printTableHeader(t, "PLAN", "NAME", "DAILY CREDITS", "PREVIEW", "FINAL", "PRICE/MO", "FEATURES")
				for _, p := range plans {
					price := "free"
					if p.MonthlyPriceUSD != nil && *p.MonthlyPriceUSD > 0 {
						price = fmt.Sprintf("$%.2f", *p.MonthlyPriceUSD)
					}
					fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						p.PlanID,
						p.DisplayName,
						intOrDash(p.DailyCredits),
						intOrDash(p.PreviewCostCredits),
						intOrDash(p.FinalCostCredits),
						price,
						strings.Join(p.Features, ","),
					)
				}
				return t.Flush()
			})
		},
	}
}

func intOrDash(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprint(*n)
}
