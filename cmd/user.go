/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/internal/db"
	"github.com/modcatalog/apiserver/internal/services"
	"github.com/modcatalog/apiserver/internal/store"
	"github.com/modcatalog/apiserver/types"
	"github.com/spf13/cobra"
)

const cliActor = "cli"

var (
	userPassword    string
	userPermissions []string
	userSuperadmin  bool
)

// userCmd groups account maintenance commands.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user, optionally with permissions",
	Long: `Creates a user directly in the database. Permissions given here are
stored as-is, which makes this the way to bootstrap the first superadmin:

	modcatalog user create alice --password s3cret --superadmin
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userPassword == "" {
			return errors.New("--password is required")
		}

		perms := types.ParsePermissions(userPermissions)
		if len(perms) != len(userPermissions) {
			return fmt.Errorf("unknown permission in %v", userPermissions)
		}
		if userSuperadmin {
			perms = append(perms, types.PermSuperadmin)
		}

		cfg := config.LoadConfig()
		log := newLogger(cfg)
		ctx := cmd.Context()

		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn), services.Deps{Logger: log})
		user, err := users.Create(ctx, cliActor, args[0], userPassword)
		if err != nil {
			return err
		}
		if len(perms) > 0 {
			if user, err = users.SetPermissions(ctx, cliActor, user.Username, perms); err != nil {
				return err
			}
		}

		log.Info(ctx, "user created", "username", user.Username, "permissions", types.PermissionStrings(user.Permissions))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "initial password")
	userCreateCmd.Flags().StringSliceVar(&userPermissions, "permissions", nil, "comma separated permissions to grant")
	userCreateCmd.Flags().BoolVar(&userSuperadmin, "superadmin", false, "grant superadmin")
}
