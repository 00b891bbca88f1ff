// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/timeloop-rec/timeloop/lib/binhash"
	"github.com/timeloop-rec/timeloop/lib/ids"
	"github.com/timeloop-rec/timeloop/lib/session"
	"github.com/timeloop-rec/timeloop/lib/store"
)

// runRecord appends one synthetic event to an existing session,
// standing in for the terminal emulator / filesystem watcher ingress
// collaborators (out of scope for this core) so a session's event
// stream can be exercised manually.
func runRecord(logger *slog.Logger, args []string) error {
	fs := newFlagSet("timeloop record")
	var flags storeFlags
	flags.addTo(fs)
	exitCode := fs.Int("exit-code", 0, "exit code for a command event")
	duration := fs.Duration("duration", 0, "duration for a command event")
	changeType := fs.String("change-type", "modified", "file change type: created, modified, deleted, renamed")
	contentFile := fs.String("content-file", "", "for file_change: path whose contents are hashed into content_hash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	positional := fs.Args()
	if len(positional) < 2 {
		return usagef("usage: timeloop record <session-id> <kind> [text]")
	}
	sessionID, err := ids.ParseSessionID(positional[0])
	if err != nil {
		return usagef("invalid session id %q: %v", positional[0], err)
	}
	kind := store.EventKind(positional[1])
	text := strings.Join(positional[2:], " ")

	s, cleanup, err := openStore(logger, &flags, "")
	if err != nil {
		return err
	}
	defer cleanup()
	defer s.Close()

	manager := session.New(s)

	var payload any
	switch kind {
	case store.KindKeyPress:
		payload = store.KeyPress{Code: text}
	case store.KindCommand:
		payload = store.Command{Line: text, ExitCode: *exitCode, Duration: *duration}
	case store.KindFileChange:
		change := store.FileChange{Path: text, ChangeType: store.FileChangeType(*changeType)}
		if *contentFile != "" {
			digest, err := binhash.HashFile(*contentFile)
			if err != nil {
				return fmt.Errorf("hashing --content-file %s: %w", *contentFile, err)
			}
			change.ContentHash = binhash.FormatDigest(digest)
		}
		payload = change
	case store.KindTerminalState:
		payload = store.TerminalState{}
	case store.KindSessionMeta:
		payload = store.SessionMeta{Tag: text}
	default:
		return usagef("unknown event kind %q (want key_press, command, file_change, terminal_state, or session_meta)", kind)
	}

	event, err := manager.AppendAt(sessionID, kind, time.Time{}, payload)
	if err != nil {
		return err
	}
	fmt.Printf("appended event %s at sequence %d\n", event.ID, event.Sequence)
	return nil
}
