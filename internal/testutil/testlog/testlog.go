package testlog

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sammck-go/chanbridge/pkg/logger"
)

// testWriter forwards log lines to t until the test finishes. Background goroutines
// (sessions, hubs) routinely outlive the test body, so late lines are dropped
// rather than reported through a completed testing.T.
type testWriter struct {
	mu   sync.Mutex
	t    testing.TB
	done bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	}
	return len(p), nil
}

// New returns a debug-level Logger that writes through t, prefixed with the test name.
func New(t testing.TB) logger.Logger {
	t.Helper()
	w := &testWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})
	lg, err := logger.New(
		logger.WithWriter(w),
		logger.WithLogLevel(logger.LogLevelDebug),
		logger.WithPrefix(t.Name()),
	)
	if err != nil {
		t.Fatalf("logger.New() returned error: %s", err)
	}
	return lg
}
