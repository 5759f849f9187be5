package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdfformfiller/internal/form"
	"github.com/Lllllllleong/pdfformfiller/internal/pdf"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields <form.pdf>",
	Short: "List the fillable fields of a PDF without starting a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := pdf.ParseDuplicatePolicy(cfg.Fields.DuplicatePolicy)
		if err != nil {
			return err
		}
		infos, err := pdf.NewEngine(policy).ExtractFields(args[0])
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tPAGE\tCHOICES")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.Name, form.Classify(info.Code), info.Page, strings.Join(info.Choices, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}
