package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/crateindex/pkg/observability"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
		{"warn at info level", log.InfoLevel, func(l *log.Logger) { l.Warn("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(newLogger(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("got log output = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	prog := newProgress(newLogger(&buf, log.InfoLevel))
	time.Sleep(5 * time.Millisecond)
	prog.done("indexed", "packages", 3)

	out := buf.String()
	for _, want := range []string{"indexed", "packages=3", "took="} {
		if !strings.Contains(out, want) {
			t.Errorf("progress output %q should contain %q", out, want)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	custom := newLogger(&buf, log.InfoLevel)

	ctx := withLogger(context.Background(), custom)
	if got := loggerFromContext(ctx); got != custom {
		t.Error("loggerFromContext should return the attached logger")
	}
	if loggerFromContext(context.Background()) != log.Default() {
		t.Error("loggerFromContext should fall back to log.Default()")
	}
}

func TestDebugHooks(t *testing.T) {
	t.Cleanup(observability.Reset)

	installDebugHooks(newLogger(io.Discard, log.InfoLevel))
	if _, ok := observability.HTTP().(*debugHooks); ok {
		t.Fatal("debug hooks should not be installed at info level")
	}

	var buf bytes.Buffer
	installDebugHooks(newLogger(&buf, log.DebugLevel))
	observability.HTTP().OnResponse(context.Background(), "GET", "crates.io", "/api/v1/crates/serde", 200, time.Second)
	observability.Store().OnReplace(context.Background(), "serde-1.0.210", 42, time.Millisecond, nil)

	out := buf.String()
	for _, want := range []string{"http response", "status=200", "stored", "package=serde-1.0.210", "rows=42"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output should contain %q:\n%s", want, out)
		}
	}
}
