package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zippro/homeai"
)

func newBootstrapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Show the session bootstrap: credits, plan, board and experiments",
		Long: `Fetch the composite session bootstrap for the configured user.

Examples:
  homeai bootstrap --user u1
  homeai bootstrap --user u1 --board-limit 5 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.session(cmd.Context())
			if err != nil {
				return err
			}

			boardLimit, _ := cmd.Flags().GetInt("board-limit")
			experimentLimit, _ := cmd.Flags().GetInt("experiment-limit")

			snap, err := client.Bootstrap.Fetch(cmd.Context(), homeai.BootstrapOptions{
				BoardLimit:      boardLimit,
				ExperimentLimit: experimentLimit,
			})
			if err != nil {
				return err
			}

			return a.print(snap, func(w io.Writer) error {
				return printSnapshot(w, snap)
			})
		},
	}

	cmd.Flags().Int("board-limit", homeai.DefaultBoardLimit, "maximum number of board projects")
	cmd.Flags().Int("experiment-limit", homeai.DefaultExperimentLimit, "maximum number of experiment assignments")
	return cmd
}

func printSnapshot(w io.Writer, snap *homeai.BootstrapSnapshot) error {
	p := snap.Profile
	credits := "-"
	if balance, ok := p.Balance(); ok {
		credits = fmt.Sprint(balance)
	}
	plan, status := "-", "none"
	if p.EffectivePlan != nil {
		plan = p.EffectivePlan.DisplayName
	}
	if p.Entitlement != nil && p.Entitlement.Status != "" {
		status = p.Entitlement.Status
	}
	fmt.Fprintf(w, "User:        %s\n", snap.Me.UserID)
	fmt.Fprintf(w, "Credits:     %s\n", credits)
	fmt.Fprintf(w, "Plan:        %s (%s)\n", plan, status)
	fmt.Fprintf(w, "Next reset:  %s\n", formatTime(p.NextCreditResetAt))
	fmt.Fprintf(w, "Provider:    %s\n", snap.ProviderDefaults.DefaultProvider)

	if len(snap.Variables) > 0 {
		keys := make([]string, 0, len(snap.Variables))
		for k := range snap.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\nVariables:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s = %v\n", k, snap.Variables[k])
		}
	}

	if len(snap.Experiments) > 0 {
		fmt.Fprintln(w, "\nExperiments:")
		for _, e := range snap.Experiments {
			fmt.Fprintf(w, "  %s = %s\n", e.ExperimentID, e.VariantID)
		}
	}

	fmt.Fprintln(w)
	if len(snap.Board.Projects) == 0 {
		fmt.Fprintln(w, "No projects yet")
		return nil
	}
	t := newTable(w)
	printTableHeader(t, "PROJECT", "GENERATIONS", "LAST STYLE", "LAST STATUS", "UPDATED")
	for _, pr := range snap.Board.Projects {
		status := "-"
		if pr.LastStatus != nil {
			status = string(*pr.LastStatus)
		}
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\n",
			truncate(pr.ProjectID, 36),
			intOrDash(pr.GenerationCount),
			deref(pr.LastStyleID),
			status,
			formatTime(pr.LastUpdatedAt),
		)
	}
	return t.Flush()
}
