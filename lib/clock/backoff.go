// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Backoff computes an exponential backoff delay for attempt n (0-indexed):
// base * 2^n. It does not cap the result — callers that need a ceiling
// should clamp the return value themselves.
//
// Used by the store's Open retry loop, which retries a lock-contended
// open with base=100ms across five attempts (n=0..4), sleeping via a
// Clock so tests can exercise the schedule with a FakeClock instead of
// waiting on real time.
func Backoff(base time.Duration, n int) time.Duration {
	if n <= 0 {
		return base
	}
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
	}
	return delay
}

// Retry calls fn up to attempts times (attempts >= 1), sleeping via c
// between failures using Backoff(base, n). It stops early and returns nil
// as soon as fn succeeds. If shouldRetry is non-nil, a failing error is
// only retried when shouldRetry(err) reports true; otherwise Retry returns
// that error immediately. If every attempt fails, Retry returns the last
// error.
func Retry(c Clock, attempts int, base time.Duration, shouldRetry func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt < attempts-1 {
			c.Sleep(Backoff(base, attempt))
		}
	}
	return lastErr
}
