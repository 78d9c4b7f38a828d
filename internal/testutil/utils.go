package testutil

import (
	"log"
	"strings"
	"sync"
	"testing"
)

// testWriter forwards log lines to t until the test's cleanup runs. Hub and
// heartbeat goroutines may still log after that point.
type testWriter struct {
	mu   sync.Mutex
	t    testing.TB
	done bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.done {
		w.t.Log(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

func TestLogger(t testing.TB) *log.Logger {
	w := &testWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})

	return log.New(w, "[test] ", log.LstdFlags)
}
