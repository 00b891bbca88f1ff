// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/timeloop-rec/timeloop/lib/branch"
	"github.com/timeloop-rec/timeloop/lib/ids"
)

func runMerge(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop merge")
	var flags storeFlags
	flags.addTo(fs)
	policyName := fs.String("policy", "append_since_branch_point", "merge policy: append_all, append_since_branch_point, or dry_run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 2 {
		return usagef("usage: timeloop merge <source-branch-id> <target-session-id> [--policy POLICY]")
	}
	sourceID, err := ids.ParseBranchID(fs.Args()[0])
	if err != nil {
		return usagef("invalid branch id %q: %v", fs.Args()[0], err)
	}
	targetID, err := ids.ParseSessionID(fs.Args()[1])
	if err != nil {
		return usagef("invalid session id %q: %v", fs.Args()[1], err)
	}

	var policy branch.MergePolicy
	switch *policyName {
	case "append_all":
		policy = branch.MergeAppendAll
	case "append_since_branch_point":
		policy = branch.MergeAppendSinceBranchPoint
	case "dry_run":
		policy = branch.MergeDryRun
	default:
		return usagef("unknown merge policy %q (want append_all, append_since_branch_point, or dry_run)", *policyName)
	}

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	result, err := branch.New(s).Merge(sourceID, targetID, policy)
	if err != nil {
		return err
	}
	if policy == branch.MergeDryRun {
		fmt.Printf("would copy %d events, sequence %d..%d\n", result.EventsCopied, result.FirstTarget, result.LastTarget)
		return nil
	}
	fmt.Printf("copied %d events, sequence %d..%d\n", result.EventsCopied, result.FirstTarget, result.LastTarget)
	return nil
}
