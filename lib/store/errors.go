// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
)

// Kind identifies a category of store failure. Kind values are stable
// and safe to switch on; Error's Op and Err fields carry the
// situational detail.
type Kind int

const (
	// IoError is an underlying filesystem or KV failure not otherwise
	// classified.
	IoError Kind = iota
	// LockContended means the KV file lock could not be acquired
	// within the retry budget.
	LockContended
	// SessionNotFound means the requested session id has no record.
	SessionNotFound
	// BranchNotFound means the requested branch id has no record.
	BranchNotFound
	// InvalidBranchPoint means a branch's at_sequence was 0 or exceeded
	// the parent's last_sequence.
	InvalidBranchPoint
	// SessionClosedKind means append was called on a closed session.
	SessionClosedKind
	// AppendOnlyViolation means an append-only store rejected a delete
	// or in-place overwrite of an event key.
	AppendOnlyViolation
	// FormatMismatch means the persisted format disagrees with the
	// format requested at open.
	FormatMismatch
	// AuthenticationFailed means an encryption tag mismatch or wrong
	// passphrase.
	AuthenticationFailed
	// CorruptFormat means a decoder could not parse required fields.
	CorruptFormat
	// Cancelled means cooperative cancellation ended an operation. Not
	// a failure condition.
	Cancelled
	// CyclicBranch means a branch's parent chain would include its own
	// id.
	CyclicBranch
	// BranchInUse means delete was called on a branch that another
	// branch still lists as its parent.
	BranchInUse
)

func (k Kind) String() string {
	switch k {
	case IoError:
		return "io_error"
	case LockContended:
		return "lock_contended"
	case SessionNotFound:
		return "session_not_found"
	case BranchNotFound:
		return "branch_not_found"
	case InvalidBranchPoint:
		return "invalid_branch_point"
	case SessionClosedKind:
		return "session_closed"
	case AppendOnlyViolation:
		return "append_only_violation"
	case FormatMismatch:
		return "format_mismatch"
	case AuthenticationFailed:
		return "authentication_failed"
	case CorruptFormat:
		return "corrupt_format"
	case Cancelled:
		return "cancelled"
	case CyclicBranch:
		return "cyclic_branch"
	case BranchInUse:
		return "branch_in_use"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the single error type returned by every exported store
// operation. Op names the failing operation (e.g. "append_event",
// "open"); Key, when non-empty, names the KV key or entity id
// involved.
type Error struct {
	Kind Kind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		if e.Err != nil {
			return fmt.Sprintf("store: %s %s: %s: %v", e.Op, e.Key, e.Kind, e.Err)
		}
		return fmt.Sprintf("store: %s %s: %s", e.Op, e.Key, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode maps a store error to the process exit code from spec §6:
// 0 success, 2 invalid arguments, 3 lock contention, 4 authentication
// failure, 5 corrupt data, 1 other.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case LockContended:
		return 3
	case AuthenticationFailed:
		return 4
	case CorruptFormat:
		return 5
	case InvalidBranchPoint, SessionNotFound, BranchNotFound, FormatMismatch, CyclicBranch:
		return 2
	default:
		return 1
	}
}

func isKind(err error, kind Kind) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind == kind
	}
	return false
}

func IsLockContended(err error) bool       { return isKind(err, LockContended) }
func IsSessionNotFound(err error) bool     { return isKind(err, SessionNotFound) }
func IsBranchNotFound(err error) bool      { return isKind(err, BranchNotFound) }
func IsInvalidBranchPoint(err error) bool  { return isKind(err, InvalidBranchPoint) }
func IsSessionClosed(err error) bool       { return isKind(err, SessionClosedKind) }
func IsAppendOnlyViolation(err error) bool { return isKind(err, AppendOnlyViolation) }
func IsFormatMismatch(err error) bool      { return isKind(err, FormatMismatch) }
func IsAuthenticationFailed(err error) bool {
	return isKind(err, AuthenticationFailed)
}
func IsCorruptFormat(err error) bool { return isKind(err, CorruptFormat) }
func IsCancelled(err error) bool     { return isKind(err, Cancelled) }
func IsCyclicBranch(err error) bool  { return isKind(err, CyclicBranch) }
func IsBranchInUse(err error) bool   { return isKind(err, BranchInUse) }
