// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// timeloop is the ambient command-line front end for the event store:
// it resolves configuration, opens a store, and drives session/branch/
// backup operations. It is a consumer of lib/store, lib/session, and
// lib/branch, not part of the core those packages implement.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
)

const version = "0.1.0-dev"

// usageError is returned for malformed command-line input; its
// ExitCode matches spec exit code 2 ("invalid arguments").
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }
func (e *usageError) ExitCode() int { return 2 }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type subcommand struct {
	name    string
	summary string
	run     func(logger *slog.Logger, args []string) error
}

var subcommands = []subcommand{
	{"init", "create a new store directory", runInit},
	{"record", "append a synthetic event to a session (manual testing)", runRecord},
	{"list", "list every session", runList},
	{"summary", "summarise a session's event stream", runSummary},
	{"branch", "create a branch of a session", runBranch},
	{"merge", "merge a branch into a target session", runMerge},
	{"compact", "rewrite a session's event prefix under the compaction policy", runCompact},
	{"backup", "write a self-describing backup file", runBackup},
	{"restore", "restore sessions/events/branches from a backup file", runRestore},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && (args[0] == "--version" || args[0] == "version") {
		fmt.Println("timeloop " + version)
		return nil
	}
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" || args[0] == "help" {
		printUsage()
		return nil
	}

	name := args[0]
	for _, cmd := range subcommands {
		if cmd.name != name {
			continue
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		if err := cmd.run(logger, args[1:]); err != nil {
			if err == pflag.ErrHelp {
				return nil
			}
			return err
		}
		return nil
	}
	return usagef("unknown subcommand %q; run `timeloop --help` for a list", name)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `timeloop — persistent event store and session/branch manager for recorded terminal sessions.

Usage:
  timeloop <subcommand> [flags]

Subcommands:
`)
	for _, cmd := range subcommands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(os.Stderr, `
Environment:
  TIMELOOP_DATA_DIR    overrides the default per-OS data directory
  TIMELOOP_PASSPHRASE  supplies the encryption passphrase non-interactively
  TIMELOOP_CONFIG      path to an optional YAML settings file

Run "timeloop <subcommand> --help" for subcommand-specific flags.
`)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
