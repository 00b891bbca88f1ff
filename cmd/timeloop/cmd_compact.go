// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/timeloop-rec/timeloop/lib/ids"
)

func runCompact(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop compact")
	var flags storeFlags
	flags.addTo(fs)
	sessionArg := fs.String("session", "", "only compact this session (default: every eligible session)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return usagef("compact takes no positional arguments")
	}

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	var sessionID *ids.SessionID
	if *sessionArg != "" {
		parsed, err := ids.ParseSessionID(*sessionArg)
		if err != nil {
			return usagef("invalid session id %q: %v", *sessionArg, err)
		}
		sessionID = &parsed
	}

	if err := s.Compact(sessionID); err != nil {
		return err
	}
	fmt.Println("compaction complete")
	return nil
}
