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
	"github.com/spf13/cobra"
)

// changePasswordCmd re-encrypts the stash under a new master password.
var changePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the master password",
	Long: `Change the master password. The stash is decrypted with the current
password and re-encrypted with a fresh salt under the new one.`,
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		oldPassword, err := promptPassword("Current master password: ")
		if err != nil {
			handleError(err)
		}
		newPassword, err := promptNewPassword()
		if err != nil {
			handleError(err)
		}
		if err := c.ChangePassword(oldPassword, newPassword); err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess("Master password changed"); err != nil {
			handleError(err)
		}
	},
}
