package test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/log"
)

var _ log.Logger = (*CapturingLogger)(nil)

// CapturingLogger writes logfmt lines to t and keeps them so tests can assert on what was logged.
type CapturingLogger struct {
	t testing.TB

	mtx    sync.Mutex
	buf    bytes.Buffer
	logger log.Logger
}

func NewCapturingLogger(t testing.TB) *CapturingLogger {
	l := &CapturingLogger{t: t}
	l.logger = log.NewLogfmtLogger(&l.buf)
	return l
}

func (l *CapturingLogger) Log(keyvals ...interface{}) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	start := l.buf.Len()
	if err := l.logger.Log(keyvals...); err != nil {
		return err
	}
	l.t.Log(strings.TrimSuffix(l.buf.String()[start:], "\n"))

	return nil
}

// Lines returns everything logged so far, one entry per Log call.
func (l *CapturingLogger) Lines() []string {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	out := strings.TrimSuffix(l.buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// Contains reports whether any logged line contains all the given substrings.
func (l *CapturingLogger) Contains(substrs ...string) bool {
	for _, line := range l.Lines() {
		matched := true
		for _, s := range substrs {
			if !strings.Contains(line, s) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
