package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdfformfiller/internal/app"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark active sessions idle for longer than session.ttl as expired",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := app.Build(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Service.ExpireStale(cmd.Context(), cfg.Session.TTL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(expireCmd)
}
