package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stemsi/aptitest-backend/internal/service"
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Manage question content",
}

var questionsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>...",
	Short: "Import YAML question banks",
	Long:  "Import YAML question banks. Existing questions with the same number are replaced. Restart the server or call POST /api/v1/admin/questions/prewarm afterwards to refresh the cache.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := env(cmd)
		ctx := context.Background()
		stores, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeStore()

		for _, path := range args {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			n, err := service.ImportQuestions(ctx, stores.Questions, f, cfg.SurveyTypes)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Printf("%s: %d questions imported\n", path, n)
		}
		return nil
	},
}

func init() {
	questionsCmd.AddCommand(questionsImportCmd)
}
