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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jeremyhahn/go-stash/pkg/client"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintKeyList prints stored key names
func (p *Printer) PrintKeyList(keys []string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"keys": keys,
		})
	case OutputFormatText:
		if len(keys) == 0 {
			fmt.Fprintln(p.writer, "No secrets stored")
			return nil
		}
		for _, key := range keys {
			fmt.Fprintln(p.writer, key)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintValue prints a secret value
func (p *Printer) PrintValue(key, value string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"key":   key,
			"value": value,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, value)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHealth prints daemon health status
func (p *Printer) PrintHealth(h *client.Health) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"running":  true,
			"unlocked": h.Unlocked,
			"pid":      h.PID,
		})
	case OutputFormatText:
		state := "locked"
		if h.Unlocked {
			state = "unlocked"
		}
		fmt.Fprintf(p.writer, "daemon running (pid %d), stash %s\n", h.PID, state)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintNotRunning prints the no-daemon health state
func (p *Printer) PrintNotRunning() error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"running": false,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, "daemon not running")
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// handleError prints an error to stderr and exits with code 1
func handleError(err error) {
	errPrinter := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = errPrinter.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(1)
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
