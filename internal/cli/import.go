package cli

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/config"
	"studymed-quiz-service/internal/importer"
	"studymed-quiz-service/internal/infra/postgres"
	"studymed-quiz-service/internal/logger"
)

// NewImportCmd loads a quiz document file into postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Validate and store quizzes from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return errNoPostgres
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			imp, err := importer.New(postgres.NewQuizStore(pool), importer.WithLogger(log))
			if err != nil {
				return err
			}
			report, err := imp.Import(ctx, data)
			if err != nil {
				return err
			}
			log.Info("import finished", zap.String("file", args[0]), zap.Int("count", report.Imported))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d quizzes\n", report.Imported)
			return err
		},
	}
}
