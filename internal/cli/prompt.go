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
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeremyhahn/go-stash/pkg/client"
	"github.com/jeremyhahn/go-stash/pkg/protocol"
)

// errPasswordMismatch rejects a confirmation that differs from the
// first entry.
var errPasswordMismatch = errors.New("passwords do not match")

// stdinReader is shared so consecutive prompts on a piped stdin do not
// lose buffered lines.
var stdinReader = bufio.NewReader(os.Stdin)

// stdinIsTerminal reports whether interactive prompting is possible.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptPassword reads a password without echo from the terminal. When
// stdin is not a terminal it reads one plain line instead, so scripts
// can pipe the password in.
func promptPassword(label string) (string, error) {
	if !stdinIsTerminal() {
		line, err := stdinReader.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, label)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}

// promptNewPassword reads and confirms a new master password.
func promptNewPassword() (string, error) {
	password, err := promptPassword("New master password: ")
	if err != nil {
		return "", err
	}
	if !stdinIsTerminal() {
		return password, nil
	}
	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errPasswordMismatch
	}
	return password, nil
}

// withAutoUnlock runs fn; when it fails because the stash is locked and
// a terminal is attached, it prompts for the master password, unlocks,
// and retries once.
func withAutoUnlock(c *client.Client, fn func() error) error {
	err := fn()
	if !client.IsTag(err, protocol.TagLocked) || !stdinIsTerminal() {
		return err
	}
	password, perr := promptPassword("Master password: ")
	if perr != nil {
		return err
	}
	if uerr := c.Unlock(password); uerr != nil {
		return uerr
	}
	return fn()
}
