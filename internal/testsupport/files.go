package testsupport

import (
	"os"
	"strings"
	"testing"
	"time"
)

// WaitForContent polls path until pred accepts its contents or timeout
// passes, and returns the last contents read. A missing file reads as empty.
func WaitForContent(t testing.TB, path string, timeout time.Duration, pred func(string) bool) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var last string
	for {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			t.Fatalf("read %s: %v", path, err)
		}
		last = string(data)
		if pred(last) {
			return last
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; contents %q", path, last)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Contains returns a predicate matching contents that include substr.
func Contains(substr string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, substr) }
}

// WaitFor polls cond until it holds or timeout passes.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// DefaultWait is a generous bound for IPC round trips in tests.
const DefaultWait = 5 * time.Second
