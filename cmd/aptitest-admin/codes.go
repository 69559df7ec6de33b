package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stemsi/aptitest-backend/internal/service"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Manage one-time login codes",
}

var codesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate fresh login codes",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		cfg, log := env(cmd)
		ctx := context.Background()
		stores, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeStore()

		codes, err := service.NewCodeService(stores.Codes, log).Generate(ctx, count)
		if err != nil {
			return err
		}
		for _, c := range codes {
			fmt.Println(c)
		}
		return nil
	},
}

var codesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List login codes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var used *bool
		if cmd.Flags().Changed("used") {
			v, _ := cmd.Flags().GetBool("used")
			used = &v
		}

		cfg, log := env(cmd)
		ctx := context.Background()
		stores, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeStore()

		codes, err := service.NewCodeService(stores.Codes, log).List(ctx, used, limit)
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			fmt.Println("No codes found.")
			return nil
		}

		fmt.Printf("%-10s  %-5s  %-19s  %s\n", "Code", "Used", "Created", "Used at")
		fmt.Println(strings.Repeat("─", 60))
		for _, c := range codes {
			usedAt := "-"
			if c.UsedAt != nil {
				usedAt = c.UsedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-10s  %-5t  %-19s  %s\n",
				c.CodeValue,
				c.IsUsed,
				c.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				usedAt,
			)
		}
		return nil
	},
}

func init() {
	codesGenerateCmd.Flags().Int("count", 10, "Number of codes to generate")
	codesListCmd.Flags().Int("limit", 100, "Maximum number of codes to show")
	codesListCmd.Flags().Bool("used", false, "Show only used (true) or unused (false) codes")

	codesCmd.AddCommand(codesGenerateCmd)
	codesCmd.AddCommand(codesListCmd)
}
