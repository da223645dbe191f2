package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/repository"
	"github.com/ragdesk/ragdesk/internal/service"
)

func KBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect the knowledge base",
	}

	cmd.AddCommand(KBStatsCmd())
	return cmd
}

func KBStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		Long:  "Show per-department document and chunk counts for both knowledge tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			outputFormat, _ := cmd.Flags().GetString("output")

			pool, err := getDBPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			stats, err := service.NewCatalogService(repository.NewChunkRepository(pool)).Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to load knowledge base stats: %w", err)
			}

			if outputFormat == "json" {
				jsonBytes, _ := json.MarshalIndent(stats, "", "  ")
				fmt.Println(string(jsonBytes))
				return nil
			}

			if len(stats) == 0 {
				fmt.Println("Knowledge base is empty")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEPARTMENT\tTIER\tDOCUMENTS\tCHUNKS")
			for _, row := range stats {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", row.Department, row.SourceTier, row.Documents, row.Chunks)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}
