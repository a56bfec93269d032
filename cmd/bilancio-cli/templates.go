package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"bilancio/internal/cli"
	"bilancio/internal/core"

	"github.com/spf13/cobra"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage recurring bill and income templates",
	}
	cmd.AddCommand(
		templatesListCmd(),
		templatesAddCmd(),
		templatesActiveCmd("activate", true),
		templatesActiveCmd("deactivate", false),
	)
	return cmd
}

func templatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <bills|incomes>",
		Short: "List templates of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseTemplateKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				templates, err := app.Templates.List(ctx, kind)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, templates)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tAMOUNT\tPERIOD\tANCHOR\tACTIVE")
				for _, t := range templates {
					anchor := "-"
					if t.DayOfMonth > 0 {
						anchor = fmt.Sprintf("day %d", t.DayOfMonth)
					} else if t.StartDate != nil {
						anchor = t.StartDate.String()
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", t.ID, t.Name, t.Amount, t.BillingPeriod, anchor, t.IsActive)
				}
				return tw.Flush()
			})
		},
	}
}

func templatesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <bills|incomes>",
		Short: "Create or replace a template",
		Long: `Create or replace a template.

Monthly templates need --day or --start; weekly, bi_weekly and semi_annually
templates need --start. Passing the --id of an existing template replaces it.
Saving a template does not rewrite months already generated: run sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseTemplateKind(args[0])
			if err != nil {
				return err
			}
			amount, err := amountFlag(cmd, "amount")
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			id, _ := flags.GetString("id")
			name, _ := flags.GetString("name")
			period, _ := flags.GetString("period")
			day, _ := flags.GetInt("day")
			start, _ := flags.GetString("start")
			category, _ := flags.GetString("category")
			source, _ := flags.GetString("source")
			inactive, _ := flags.GetBool("inactive")

			t := core.Template{
				ID:              id,
				Name:            name,
				Amount:          amount,
				BillingPeriod:   core.BillingPeriod(period),
				DayOfMonth:      day,
				IsActive:        !inactive,
				Category:        category,
				PaymentSourceID: source,
			}
			if start != "" {
				d, err := core.ParseDate(start)
				if err != nil {
					return err
				}
				t.StartDate = &d
			}

			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				saved, err := app.Templates.Save(ctx, kind, t)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, saved)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "template %s saved\n", saved.ID)
				return nil
			})
		},
	}

	cmd.Flags().String("id", "", "template id (default: generated)")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("amount", "", "amount per occurrence, e.g. 850.00")
	cmd.Flags().String("period", string(core.Monthly), "billing period (monthly, weekly, bi_weekly, semi_annually)")
	cmd.Flags().Int("day", 0, "day of month for monthly templates")
	cmd.Flags().String("start", "", "start date YYYY-MM-DD")
	cmd.Flags().String("category", "", "category")
	cmd.Flags().String("source", "", "default payment source id")
	cmd.Flags().Bool("inactive", false, "save the template as inactive")
	return cmd
}

func templatesActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <bills|incomes> <template-id>",
		Short: fmt.Sprintf("Mark a template as %sd", use),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseTemplateKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				t, err := app.Templates.SetActive(ctx, kind, args[1], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "template %s active=%t\n", t.ID, t.IsActive)
				return nil
			})
		},
	}
}
