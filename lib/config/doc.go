// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the timeloop
// CLI.
//
// Configuration is loaded from a single file named by the
// TIMELOOP_CONFIG environment variable (via [Load]) or by an explicit
// path (via [LoadFile]). There are no fallbacks and no ~/.config discovery.
// The store's own data directory and passphrase come from
// TIMELOOP_DATA_DIR and TIMELOOP_PASSPHRASE (or --data-dir / --passphrase-file
// flags in cmd/timeloop) rather than from this file, so that the secret
// never has to be written to disk in a settings file.
//
// Variable expansion is performed on path fields after loading: ${HOME},
// ${TIMELOOP_ROOT}, and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Paths and Compaction settings
//   - [Default] -- returns a Config with development-friendly defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other timeloop packages.
package config
