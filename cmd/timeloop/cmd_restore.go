// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
)

func runRestore(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop restore")
	var flags storeFlags
	flags.addTo(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 1 {
		return usagef("usage: timeloop restore <path>")
	}
	path := fs.Args()[0]

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	if err := s.Restore(path); err != nil {
		return err
	}
	fmt.Printf("restored from %s\n", path)
	return nil
}
