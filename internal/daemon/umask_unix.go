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

//go:build unix

package daemon

import "golang.org/x/sys/unix"

// setUmask swaps the process umask and returns the previous one. Used to
// create the listening socket owner-only without a chmod window.
func setUmask(mask int) int {
	return unix.Umask(mask)
}
