package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"bilancio/internal/core"

	"github.com/spf13/cobra"
)

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func status(occ core.Occurrence) string {
	if !occ.IsClosed() {
		if paid := occ.Paid(); paid.Cents > 0 {
			return "partial " + paid.String()
		}
		return "open"
	}
	s := "closed " + occ.Closure.Date.String()
	if occ.Closure.PaymentSourceID != "" {
		s += " via " + occ.Closure.PaymentSourceID
	}
	return s
}

// printDocument renders one row per occurrence.
func printDocument(cmd *cobra.Command, doc *core.MonthlyDocument) error {
	if jsonOutput(cmd) {
		return printJSON(cmd, doc)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Month %s\n\n", doc.Month)
	fmt.Fprintln(tw, "KIND\tNAME\tINSTANCE\tOCCURRENCE\tDATE\tAMOUNT\tSTATUS")
	for _, kind := range []core.TemplateKind{core.BillTemplate, core.IncomeTemplate} {
		for _, inst := range doc.Instances(kind) {
			for _, occ := range inst.Occurrences {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					kind, inst.Name, inst.ID, occ.ID, occ.ExpectedDate, occ.ExpectedAmount, status(occ))
			}
		}
	}
	return tw.Flush()
}

func printOccurrence(cmd *cobra.Command, occ core.Occurrence) error {
	if jsonOutput(cmd) {
		return printJSON(cmd, occ)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s\n", occ.ID, occ.ExpectedDate, occ.ExpectedAmount, status(occ))
	return err
}
