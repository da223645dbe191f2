package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/cli"
	"github.com/ragdesk/ragdesk/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ragdeskd",
		Short: "RagDesk daemon and CLI",
		Long:  "RagDesk daemon for running the assistant API server and managing the knowledge base",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.FeedbackCmd())
	rootCmd.AddCommand(admin.KBCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
