// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/session"
)

func runSummary(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop summary")
	var flags storeFlags
	flags.addTo(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return usagef("usage: timeloop summary <session-id>")
	}
	sessionID, err := ids.ParseSessionID(fs.Args()[0])
	if err != nil {
		return usagef("invalid session id %q: %v", fs.Args()[0], err)
	}

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	summary, err := session.New(s).Summary(sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("duration:          %s\n", summary.Duration)
	fmt.Printf("commands:          %d\n", summary.CommandCount)
	fmt.Printf("key presses:       %d\n", summary.KeyPressCount)
	fmt.Printf("file changes:      %d\n", summary.FileChangeCount)
	fmt.Printf("first sequence:    %d\n", summary.FirstSequence)
	fmt.Printf("last sequence:     %d\n", summary.LastSequence)
	return nil
}
