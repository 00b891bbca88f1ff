// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/timeloop-rec/timeloop/lib/clock"
	"github.com/timeloop-rec/timeloop/lib/codec"
	"github.com/timeloop-rec/timeloop/lib/config"
	"github.com/timeloop-rec/timeloop/lib/secret"
	"github.com/timeloop-rec/timeloop/lib/store"
)

// storeFlags holds the flags common to every subcommand that opens a
// store: where it lives, what format to create it with, and how to
// authenticate to it if encrypted.
type storeFlags struct {
	dataDir        string
	format         string
	encrypt        bool
	compress       bool
	passphraseFile string
	appendOnly     bool
}

func (f *storeFlags) addTo(fs *pflag.FlagSet) {
	fs.StringVar(&f.dataDir, "data-dir", "", "store directory (overridden by $TIMELOOP_DATA_DIR; default: the config file's paths.root)")
	fs.StringVar(&f.format, "format", "", "persistence format: text_json or compact_binary; must match an existing store's format (default: config file's format)")
	fs.BoolVar(&f.encrypt, "encrypt", false, "require a passphrase and seal every value at rest")
	fs.BoolVar(&f.compress, "compress", false, "zstd-compress every value before it is written (and before sealing, if --encrypt is also set)")
	fs.StringVar(&f.passphraseFile, "passphrase-file", "", "read the passphrase from this file, or \"-\" for stdin (default: $TIMELOOP_PASSPHRASE)")
	fs.BoolVar(&f.appendOnly, "append-only", false, "forbid delete or in-place overwrite of event keys")
}

// resolveDataDir applies the precedence TIMELOOP_DATA_DIR > --data-dir >
// config file's paths.root, per lib/config's documented split between
// store location and CLI settings.
func resolveDataDir(f *storeFlags, cfg *config.Config) (string, error) {
	if envDir := os.Getenv("TIMELOOP_DATA_DIR"); envDir != "" {
		return envDir, nil
	}
	if f.dataDir != "" {
		return f.dataDir, nil
	}
	if cfg.Paths.Root != "" {
		return cfg.Paths.Root, nil
	}
	return "", usagef("no store directory: set --data-dir, TIMELOOP_DATA_DIR, or paths.root in the config file")
}

// resolvePassphrase reads the passphrase, if any is configured, into a
// secret.Buffer. The caller owns closing it.
func resolvePassphrase(f *storeFlags) (*secret.Buffer, error) {
	if f.passphraseFile != "" {
		return secret.ReadFromPath(f.passphraseFile)
	}
	if env := os.Getenv("TIMELOOP_PASSPHRASE"); env != "" {
		return secret.NewFromBytes([]byte(env))
	}
	return nil, nil
}

// openStore resolves configuration, flags, and environment into
// store.Options and opens (or creates) the store directory named by
// dataDirArg (a positional store name/path argument, or "" to use the
// resolved default data directory).
func openStore(logger *slog.Logger, f *storeFlags, dataDirArg string) (*store.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, usagef("loading config: %v", err)
	}

	dir, err := resolveDataDir(f, cfg)
	if err != nil {
		return nil, nil, err
	}
	if dataDirArg != "" {
		dir = filepath.Join(dir, dataDirArg)
	}

	formatName := f.format
	if formatName == "" {
		formatName = cfg.Format
	}
	format, err := codec.ParseFormat(formatName)
	if err != nil {
		return nil, nil, usagef("invalid format %q: %v", formatName, err)
	}

	passphrase, err := resolvePassphrase(f)
	if err != nil {
		return nil, nil, usagef("reading passphrase: %v", err)
	}

	encryption := store.EncryptionOptions{Mode: store.EncryptionNone}
	if f.encrypt || passphrase != nil {
		if passphrase == nil {
			return nil, nil, usagef("--encrypt requires a passphrase: set --passphrase-file or TIMELOOP_PASSPHRASE")
		}
		encryption = store.EncryptionOptions{Mode: store.EncryptionPassword, Passphrase: passphrase}
	}

	compaction, err := resolveCompactionPolicy(cfg)
	if err != nil {
		return nil, nil, err
	}

	compression := store.CompressionNone
	if f.compress {
		compression = store.CompressionZstd
	}

	opened, err := store.Open(dir, store.Options{
		Format:      format,
		AppendOnly:  f.appendOnly,
		Compaction:  compaction,
		Encryption:  encryption,
		Compression: compression,
		OpenTimeout: 5 * time.Second,
		Clock:       clock.Real(),
		Logger:      logger,
	})
	cleanup := func() {
		if passphrase != nil {
			passphrase.Close()
		}
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return opened, cleanup, nil
}

func resolveCompactionPolicy(cfg *config.Config) (store.CompactionPolicy, error) {
	switch cfg.Compaction.Policy {
	case "", "none":
		return store.CompactionPolicy{Kind: store.CompactionNone}, nil
	case "size_threshold":
		return store.CompactionPolicy{Kind: store.CompactionSizeThreshold, Bytes: cfg.Compaction.SizeThresholdBytes}, nil
	case "event_threshold":
		return store.CompactionPolicy{Kind: store.CompactionEventThreshold, Count: cfg.Compaction.EventThreshold}, nil
	case "time_window":
		window, err := time.ParseDuration(cfg.Compaction.TimeWindow)
		if err != nil {
			return store.CompactionPolicy{}, usagef("compaction.time_window %q: %v", cfg.Compaction.TimeWindow, err)
		}
		return store.CompactionPolicy{Kind: store.CompactionTimeWindow, OlderThan: window}, nil
	default:
		return store.CompactionPolicy{}, usagef("unknown compaction policy %q", cfg.Compaction.Policy)
	}
}
