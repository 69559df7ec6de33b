package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stemsi/aptitest-backend/internal/service"
)

var hashAdminCodeCmd = &cobra.Command{
	Use:   "hash-admin-code",
	Short: "Hash an admin code for ADMIN_CODE_HASH",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("Enter admin code: ")
		code, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read admin code: %w", err)
		}
		if len(code) < 6 {
			return errors.New("admin code must be at least 6 characters")
		}

		fmt.Print("Repeat admin code: ")
		again, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read admin code: %w", err)
		}
		if string(code) != string(again) {
			return errors.New("codes do not match")
		}

		cfg, log := env(cmd)
		hash, err := service.NewAuthService(cfg, nil, log).HashCode(string(code))
		if err != nil {
			return fmt.Errorf("hash admin code: %w", err)
		}
		fmt.Printf("ADMIN_CODE_HASH=%s\n", hash)
		return nil
	},
}
