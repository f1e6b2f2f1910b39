// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-stash.
//
// go-stash is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the stash command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "stash - encrypted personal secret store",
	Long: `stash keeps small secrets (API tokens, passwords, notes) in a single
encrypted file and serves them through a background daemon.

The stash is locked with a master password. Unlocking starts a session
in the daemon; the session auto-locks after a period of inactivity and
values copied to the clipboard are cleared after a short delay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	globalConfig = NewConfig()

	rootCmd.PersistentFlags().StringVar(&globalConfig.DataDir, "data-dir", "",
		"data directory (default is $HOME/.local/go-stash)")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindEnv("data_dir", "STASH_DATA_DIR")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(changePasswordCmd)
	rootCmd.AddCommand(daemonCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// printer returns a Printer for stdout in the configured format.
func printer() *Printer {
	return NewPrinter(globalConfig.OutputFormat, os.Stdout)
}
