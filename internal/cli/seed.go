package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golekquiz-service/internal/config"
	"golekquiz-service/internal/infra/memory"
	"golekquiz-service/internal/infra/postgres"
)

// NewSeedCmd loads a quiz JSON file into the quiz tables.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <quiz.json>",
		Short: "Store a quiz from a JSON file in Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log.Level, cfg.Log.Pretty)
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			quiz, err := memory.ReadQuizFile(args[0])
			if err != nil {
				return err
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			if err := postgres.NewQuizLoader(pool).SaveQuiz(cmd.Context(), quiz); err != nil {
				return err
			}
			log.Info().Str("quiz_id", quiz.ID).Int("questions", len(quiz.Questions)).Msg("quiz stored")
			return nil
		},
	}
}
