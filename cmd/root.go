/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/modcatalog/apiserver/config"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modcatalog",
	Short: "Mod catalog API server",
	Long: `Serves the mod catalog API: mods, versions, redirects, users and
the tokens that authorize changes to them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) logging.Logger {
	return logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}
