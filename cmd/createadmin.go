/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/oshop/backoffice/config"
	"github.com/oshop/backoffice/internal/auth"
	"github.com/oshop/backoffice/internal/db"
	"github.com/oshop/backoffice/internal/store"
	"github.com/oshop/backoffice/types"
	"github.com/spf13/cobra"
)

var (
	createAdminEmail     string
	createAdminPassword  string
	createAdminFirstname string
	createAdminLastname  string
)

// createAdminCmd seeds the first admin account. Every other account is
// created from the back office itself, which needs a logged-in admin.
var createAdminCmd = &cobra.Command{
	Use:   "createadmin",
	Short: "Create an active admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.TrimSpace(createAdminEmail)
		if email == "" || createAdminPassword == "" {
			return fmt.Errorf("--email and --password are required")
		}

		cfg := config.LoadConfig()
		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database failed: %w", err)
		}
		defer func() {
			_ = dbConn.Close()
		}()

		hash, err := auth.HashPassword(createAdminPassword)
		if err != nil {
			return fmt.Errorf("hash password failed: %w", err)
		}

		users := store.NewUserRepository(dbConn)
		user, err := users.Create(cmd.Context(), types.User{
			Email:        email,
			FirstName:    createAdminFirstname,
			LastName:     createAdminLastname,
			Role:         types.RoleAdmin,
			Status:       types.StatusActive,
			PasswordHash: hash,
		})
		if err != nil {
			return fmt.Errorf("create admin failed: %w", err)
		}

		fmt.Printf("created admin %s (id %d)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVar(&createAdminEmail, "email", "", "admin email address")
	createAdminCmd.Flags().StringVar(&createAdminPassword, "password", "", "admin password")
	createAdminCmd.Flags().StringVar(&createAdminFirstname, "firstname", "Admin", "admin first name")
	createAdminCmd.Flags().StringVar(&createAdminLastname, "lastname", "Admin", "admin last name")
}
