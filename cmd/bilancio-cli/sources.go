package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"bilancio/internal/cli"
	"bilancio/internal/core"

	"github.com/spf13/cobra"
)

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage payment sources",
	}
	cmd.AddCommand(sourcesListCmd(), sourcesAddCmd())
	return cmd
}

func sourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List payment sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				sources, err := app.Sources.List(ctx)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, sources)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tKIND\tACTIVE")
				for _, s := range sources {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", s.ID, s.Name, s.Kind, s.IsActive)
				}
				return tw.Flush()
			})
		},
	}
}

func sourcesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Create or replace a payment source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			kind, _ := cmd.Flags().GetString("kind")
			exclude, _ := cmd.Flags().GetBool("exclude-from-leftover")

			src := core.PaymentSource{
				ID:                  args[0],
				Name:                name,
				Kind:                core.PaymentSourceKind(kind),
				IsActive:            true,
				ExcludeFromLeftover: exclude,
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				saved, err := app.Sources.Save(ctx, src)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "payment source %s saved\n", saved.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("kind", string(core.BankAccount), "kind (bank_account, credit_card, cash)")
	cmd.Flags().Bool("exclude-from-leftover", false, "exclude from leftover calculations")
	return cmd
}
