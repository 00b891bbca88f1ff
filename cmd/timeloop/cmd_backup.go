// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/timeloop-rec/timeloop/lib/ids"
)

func runBackup(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop backup")
	var flags storeFlags
	flags.addTo(fs)
	sessionArgs := fs.StringArray("session", nil, "only back up this session (repeatable; default: every session)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return usagef("usage: timeloop backup <path> [--session ID ...]")
	}
	path := fs.Args()[0]

	sessionIDs := make([]ids.SessionID, 0, len(*sessionArgs))
	for _, raw := range *sessionArgs {
		parsed, err := ids.ParseSessionID(raw)
		if err != nil {
			return usagef("invalid session id %q: %v", raw, err)
		}
		sessionIDs = append(sessionIDs, parsed)
	}

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	if err := s.Backup(path, sessionIDs); err != nil {
		return err
	}
	fmt.Printf("wrote backup to %s\n", path)
	return nil
}
