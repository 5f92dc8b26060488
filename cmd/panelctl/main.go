package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr    string
		timeout string
	)

	defaultAddr := os.Getenv("PANELSYNC_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://127.0.0.1:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "panelctl",
		Short:         "panelctl - operator CLI for the panelsync renewal service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", defaultAddr, "panelsync base URL")
	rootCmd.PersistentFlags().StringVar(&timeout, "timeout", "2m", "request timeout")

	client := func() (*apiClient, error) {
		return newAPIClient(addr, timeout)
	}

	rootCmd.AddCommand(reconcileCmd(client))
	rootCmd.AddCommand(divergencesCmd(client))
	rootCmd.AddCommand(runCmd(client))
	rootCmd.AddCommand(logsCmd(client))
	rootCmd.AddCommand(configCmd(client))
	rootCmd.AddCommand(accountsCmd(client))
	rootCmd.AddCommand(healthCmd(client))

	return rootCmd
}
