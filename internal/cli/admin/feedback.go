package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	openaiapi "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/database"
	"github.com/ragdesk/ragdesk/internal/openai"
	"github.com/ragdesk/ragdesk/internal/repository"
	"github.com/ragdesk/ragdesk/internal/service"
)

func FeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Manage knowledge base feedback",
		Long:  "Promote, retract, and rebuild admin-reviewed feedback knowledge",
	}

	cmd.AddCommand(FeedbackListCmd())
	cmd.AddCommand(FeedbackPromoteCmd())
	cmd.AddCommand(FeedbackRetractCmd())
	cmd.AddCommand(FeedbackRebuildCmd())

	return cmd
}

func FeedbackListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List feedback pending review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			outputFormat, _ := cmd.Flags().GetString("output")

			pool, err := getDBPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			pending, err := repository.NewFeedbackRepository(pool).ListPending(ctx)
			if err != nil {
				return fmt.Errorf("failed to list pending feedback: %w", err)
			}

			if outputFormat == "json" {
				jsonBytes, _ := json.MarshalIndent(pending, "", "  ")
				fmt.Println(string(jsonBytes))
				return nil
			}

			if len(pending) == 0 {
				fmt.Println("No feedback pending review")
				return nil
			}
			for _, fb := range pending {
				fmt.Printf("%s  [%s]  %s\n", fb.ID, fb.Department, fb.OriginalQuestion)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	return cmd
}

func FeedbackPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote <feedback-id>",
		Short: "Promote approved feedback into the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			promoter, pool, err := getPromoter(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			chunks, err := promoter.Promote(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to promote feedback: %w", err)
			}

			fmt.Printf("Promoted feedback %s (%d chunks)\n", args[0], chunks)
			return nil
		},
	}

	return cmd
}

func FeedbackRetractCmd() *cobra.Command {
	var reviewedBy string

	cmd := &cobra.Command{
		Use:   "retract <feedback-id>",
		Short: "Retract promoted feedback from the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			promoter, pool, err := getPromoter(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			deleted, err := promoter.Retract(ctx, args[0], reviewedBy)
			if err != nil {
				return fmt.Errorf("failed to retract feedback: %w", err)
			}

			fmt.Printf("Retracted feedback %s (%d chunks deleted)\n", args[0], deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&reviewedBy, "reviewed-by", "cli", "Reviewer recorded on the retraction")
	return cmd
}

func FeedbackRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the admin-reviewed tier from all approved feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			promoter, pool, err := getPromoter(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			chunks, err := promoter.RebuildSecondary(ctx)
			if err != nil {
				return fmt.Errorf("failed to rebuild knowledge base: %w", err)
			}

			fmt.Printf("Rebuilt admin-reviewed tier (%d chunks)\n", chunks)
			return nil
		},
	}

	return cmd
}

func getPromoter(ctx context.Context) (*service.FeedbackPromoter, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return nil, nil, fmt.Errorf("RAGDESK_OPENAI_API_KEY is required")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return nil, nil, err
	}

	chunkRepo := repository.NewChunkRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	sessions := service.NewSessionCache(cfg.SessionCapacity, cfg.SessionTTL)
	embed := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openaiapi.EmbeddingModel(cfg.EmbeddingModel),
		ChatModel:           cfg.ChatModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})

	return service.NewFeedbackPromoter(chunkRepo, feedbackRepo, embed, sessions), pool, nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}
