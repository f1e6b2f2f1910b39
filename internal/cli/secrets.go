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

	"github.com/jeremyhahn/go-stash/pkg/clipboard"
)

var getCopyToClipboard bool

// listCmd prints stored key names, optionally filtered by substring.
var listCmd = &cobra.Command{
	Use:   "list [filter]",
	Short: "List stored secret names",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		filter := ""
		if len(args) == 1 {
			filter = args[0]
		}
		var keys []string
		err = withAutoUnlock(c, func() error {
			var lerr error
			keys, lerr = c.List(filter)
			return lerr
		})
		if err != nil {
			handleError(err)
		}
		if err := printer().PrintKeyList(keys); err != nil {
			handleError(err)
		}
	},
}

// getCmd fetches one secret. With --copy the value goes to the system
// clipboard instead of stdout and the daemon clears it later.
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a secret value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		var value string
		err = withAutoUnlock(c, func() error {
			var gerr error
			value, gerr = c.Get(args[0])
			return gerr
		})
		if err != nil {
			handleError(err)
		}

		if getCopyToClipboard {
			clip, cerr := clipboard.NewSystem()
			if cerr != nil {
				handleError(cerr)
			}
			if cerr := clip.Write(value); cerr != nil {
				handleError(cerr)
			}
			if cerr := c.ScheduleClipboardClear(value); cerr != nil {
				handleError(cerr)
			}
			if err := printer().PrintSuccess(fmt.Sprintf("Copied %q to clipboard", args[0])); err != nil {
				handleError(err)
			}
			return
		}
		if err := printer().PrintValue(args[0], value); err != nil {
			handleError(err)
		}
	},
}

// addCmd stores a secret. The value comes from the second argument or,
// when omitted, a hidden prompt.
var addCmd = &cobra.Command{
	Use:   "add <key> [value]",
	Short: "Store a secret",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			value, err = promptPassword(fmt.Sprintf("Value for %q: ", args[0]))
			if err != nil {
				handleError(err)
			}
		}
		err = withAutoUnlock(c, func() error {
			return c.Add(args[0], value)
		})
		if err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess(fmt.Sprintf("Stored %q", args[0])); err != nil {
			handleError(err)
		}
	},
}

// deleteCmd removes a secret.
var deleteCmd = &cobra.Command{
	Use:     "delete <key>",
	Aliases: []string{"rm"},
	Short:   "Delete a secret",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		err = withAutoUnlock(c, func() error {
			return c.Delete(args[0])
		})
		if err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess(fmt.Sprintf("Deleted %q", args[0])); err != nil {
			handleError(err)
		}
	},
}

// renameCmd moves a secret to a new key.
var renameCmd = &cobra.Command{
	Use:     "rename <key> <new-key>",
	Aliases: []string{"mv"},
	Short:   "Rename a secret",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c, _, err := getConfig().CreateClient()
		if err != nil {
			handleError(err)
		}
		err = withAutoUnlock(c, func() error {
			return c.Rename(args[0], args[1])
		})
		if err != nil {
			handleError(err)
		}
		if err := printer().PrintSuccess(fmt.Sprintf("Renamed %q to %q", args[0], args[1])); err != nil {
			handleError(err)
		}
	},
}

func init() {
	getCmd.Flags().BoolVarP(&getCopyToClipboard, "copy", "c", false,
		"copy the value to the clipboard instead of printing it")
}
