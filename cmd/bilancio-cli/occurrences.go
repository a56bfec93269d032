package main

import (
	"context"
	"time"

	"bilancio/internal/cli"
	"bilancio/internal/core"
	"bilancio/internal/services"

	"github.com/spf13/cobra"
)

const occurrenceArgs = "<YYYY-MM> <instance-id> <occurrence-id>"

type occurrenceRef struct {
	month        core.Month
	instanceID   string
	occurrenceID string
}

func parseOccurrenceArgs(args []string) (occurrenceRef, error) {
	month, err := core.ParseMonth(args[0])
	if err != nil {
		return occurrenceRef{}, err
	}
	return occurrenceRef{month: month, instanceID: args[1], occurrenceID: args[2]}, nil
}

// dateFlag reads a YYYY-MM-DD flag, defaulting to today.
func dateFlag(cmd *cobra.Command, name string) (core.Date, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		now := time.Now()
		return core.NewDate(now.Year(), now.Month(), now.Day()), nil
	}
	return core.ParseDate(v)
}

func amountFlag(cmd *cobra.Command, name string) (core.Money, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return core.Money{}, core.InvalidAmount("--%s is required", name)
	}
	return core.ParseAmount(v)
}

func closeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close " + occurrenceArgs,
		Short: "Mark an occurrence as settled",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseOccurrenceArgs(args)
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			notes, _ := cmd.Flags().GetString("notes")

			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				occ, err := app.Months.CloseOccurrence(ctx, ref.month, ref.instanceID, ref.occurrenceID, services.CloseRequest{
					ClosedDate:      date,
					PaymentSourceID: source,
					Notes:           notes,
				})
				if err != nil {
					return err
				}
				return printOccurrence(cmd, occ)
			})
		},
	}
	cmd.Flags().String("date", "", "closed date YYYY-MM-DD (default today)")
	cmd.Flags().String("source", "", "payment source id")
	cmd.Flags().String("notes", "", "notes stored on the occurrence")
	return cmd
}

func reopenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reopen " + occurrenceArgs,
		Short: "Clear the closure of an occurrence",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseOccurrenceArgs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				occ, err := app.Months.ReopenOccurrence(ctx, ref.month, ref.instanceID, ref.occurrenceID)
				if err != nil {
					return err
				}
				return printOccurrence(cmd, occ)
			})
		},
	}
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split " + occurrenceArgs,
		Short: "Close the paid part of an occurrence and carry the rest",
		Long: `Close the paid part of an occurrence and carry the rest.

The occurrence is closed for the paid amount and a new open occurrence for
the remainder is added, due on the last day of the month.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseOccurrenceArgs(args)
			if err != nil {
				return err
			}
			paid, err := amountFlag(cmd, "paid")
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			source, _ := cmd.Flags().GetString("source")
			notes, _ := cmd.Flags().GetString("notes")

			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				res, err := app.Months.SplitOccurrence(ctx, ref.month, ref.instanceID, ref.occurrenceID, services.SplitRequest{
					PaidAmount:      paid,
					ClosedDate:      date,
					PaymentSourceID: source,
					Notes:           notes,
				})
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd, res)
				}
				if err := printOccurrence(cmd, res.Closed); err != nil {
					return err
				}
				return printOccurrence(cmd, res.Remainder)
			})
		},
	}
	cmd.Flags().String("paid", "", "amount paid, e.g. 120.50")
	cmd.Flags().String("date", "", "closed date YYYY-MM-DD (default today)")
	cmd.Flags().String("source", "", "payment source id")
	cmd.Flags().String("notes", "", "notes stored on the closed part")
	return cmd
}

func payCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay " + occurrenceArgs,
		Short: "Record a payment against an occurrence",
		Long: `Record a payment against an occurrence.

The occurrence closes on the payment date once its payments cover the
expected amount.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseOccurrenceArgs(args)
			if err != nil {
				return err
			}
			amount, err := amountFlag(cmd, "amount")
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				occ, err := app.Months.ApplyPayment(ctx, ref.month, ref.instanceID, ref.occurrenceID, core.Payment{Amount: amount, Date: date})
				if err != nil {
					return err
				}
				return printOccurrence(cmd, occ)
			})
		},
	}
	cmd.Flags().String("amount", "", "amount paid, e.g. 45.00")
	cmd.Flags().String("date", "", "payment date YYYY-MM-DD (default today)")
	return cmd
}
