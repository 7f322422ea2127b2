package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "pep8bot-ctl",
		Short: "PEP8bot control - operator tooling for the PEP8bot worker",
		Long: `pep8bot-ctl enqueues tasks for the PEP8bot worker, registers accounts
and inspects commit records, task runs and leftover working copies.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
