// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
)

func runList(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop list")
	var flags storeFlags
	flags.addTo(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 0 {
		return usagef("list takes no positional arguments")
	}

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	sessions, err := s.ListSessions()
	if err != nil {
		return err
	}
	for _, session := range sessions {
		branchNote := ""
		if session.Parent != nil {
			branchNote = fmt.Sprintf(" (branch of %s @ %d)", session.Parent.SessionID, session.Parent.BranchPointSequence)
		}
		fmt.Printf("%s\t%-8s\t%-20s\t%d events%s\n", session.ID, session.State, session.Name, session.EventCount, branchNote)
	}
	return nil
}
