// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/timeloop-rec/timeloop/lib/branch"
	"github.com/timeloop-rec/timeloop/lib/ids"
)

func runBranch(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop branch")
	var flags storeFlags
	flags.addTo(fs)
	atSequence := fs.Uint64("at-sequence", 0, "sequence to fork at (default: the parent's current last sequence)")
	name := fs.String("name", "", "human-readable name for the branch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return usagef("usage: timeloop branch <parent-session-id> [--at-sequence N] [--name NAME]")
	}
	parentID, err := ids.ParseSessionID(fs.Args()[0])
	if err != nil {
		return usagef("invalid session id %q: %v", fs.Args()[0], err)
	}

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	var atSequencePtr *uint64
	if fs.Changed("at-sequence") {
		atSequencePtr = atSequence
	}

	created, err := branch.New(s).Branch(parentID, atSequencePtr, *name)
	if err != nil {
		return err
	}
	fmt.Printf("created branch %s of %s at sequence %d\n", created.ID, created.ParentSessionID, created.BranchPointSequence)
	return nil
}
