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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-stash/pkg/stash"
)

// initCmd creates a new stash file directly, without the daemon.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new encrypted stash",
	Long: `Create a new encrypted stash file in the data directory.

Prompts for a master password and writes an empty stash encrypted under
it. Fails if a stash already exists.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := getConfig().DaemonConfig()
		if err != nil {
			handleError(err)
		}

		st := stash.New(cfg.StashPath())
		if st.Exists() {
			handleError(fmt.Errorf("stash already exists at %s", cfg.StashPath()))
		}

		password, err := promptNewPassword()
		if err != nil {
			handleError(err)
		}

		if err := st.Init([]byte(password)); err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess(fmt.Sprintf("Initialized empty stash at %s", cfg.StashPath())); err != nil {
			handleError(err)
		}
	},
}
