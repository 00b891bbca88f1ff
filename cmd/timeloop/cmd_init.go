// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
)

func runInit(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop init")
	var flags storeFlags
	flags.addTo(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) > 1 {
		return usagef("init takes at most one positional argument (store name), got %d", len(fs.Args()))
	}
	var name string
	if len(fs.Args()) == 1 {
		name = fs.Args()[0]
	}

	s, cleanup, err := openStore(logger, &flags, name)
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	fmt.Println("store initialised")
	return nil
}
