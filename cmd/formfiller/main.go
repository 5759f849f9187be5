package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdfformfiller/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "formfiller",
	Short: "Conversational PDF form filler",
	Long:  "Extracts the fillable fields of a PDF form, asks for each value in turn, and produces a flattened copy with the answers drawn in.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
