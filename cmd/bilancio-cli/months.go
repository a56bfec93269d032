package main

import (
	"context"
	"fmt"

	"bilancio/internal/cli"
	"bilancio/internal/core"

	"github.com/spf13/cobra"
)

func monthArg(args []string) (core.Month, error) {
	return core.ParseMonth(args[0])
}

func monthsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "months",
		Short: "List generated months",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				months, err := app.Months.ListMonths(ctx)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, months)
				}
				for _, m := range months {
					fmt.Fprintln(cmd.OutOrStdout(), m)
				}
				return nil
			})
		},
	}
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <YYYY-MM>",
		Short: "Materialize a month from the active templates",
		Long: `Materialize a month from the active templates.

An existing document for the month is replaced, discarding any closures
recorded in it. Use sync to add new templates to a month in use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				doc, err := app.Months.GenerateMonth(ctx, month)
				if err != nil {
					return err
				}
				return printDocument(cmd, doc)
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <YYYY-MM>",
		Short: "Add instances for templates a month does not reference yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				doc, added, err := app.Months.SyncMonth(ctx, month)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, map[string]any{"document": doc, "added": added})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d instance(s) added to %s\n", added, month)
				return nil
			})
		},
	}
}

func ensureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <YYYY-MM>",
		Short: "Generate a month if missing, sync it otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				res, err := app.Months.EnsureMonth(ctx, month)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, map[string]any{"document": res.Document, "created": res.Created, "added": res.Added})
				}
				if res.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "%s generated\n", month)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%d instance(s) added to %s\n", res.Added, month)
				}
				return nil
			})
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <YYYY-MM>",
		Short: "Show the occurrences of a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				doc, err := app.Months.GetMonth(ctx, month)
				if err != nil {
					return err
				}
				return printDocument(cmd, doc)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <YYYY-MM>",
		Short: "Delete a month document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := monthArg(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				if err := app.Months.DeleteMonth(ctx, month); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", month)
				return nil
			})
		},
	}
}
