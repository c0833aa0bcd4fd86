package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shelfcircle",
	Short: "Peer-to-peer book lending service",
	Long:  `ShelfCircle keeps track of personal book collections and who borrowed what: accounts, catalogs, loans and spreadsheet imports over HTTP.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
