// Package testutil provides testing utilities for strand tests.
package testutil

import (
	"testing"
	"time"
)

// Eventually polls cond until it returns true or the timeout expires.
// It fails the test with msg on timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MustPanic runs fn and fails the test if it does not panic.
// It returns the recovered panic value.
func MustPanic(t *testing.T, fn func()) (recovered any) {
	t.Helper()

	defer func() {
		recovered = recover()
		if recovered == nil {
			t.Fatal("expected panic, got none")
		}
	}()
	fn()
	return nil
}
