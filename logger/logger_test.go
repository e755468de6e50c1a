package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestPackageHelpers(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Debug("dropped")
	Info("[Login] 登录成功", String("userId", "u1"))
	Error("[Session] 清除会话失败", ErrorField(errors.New("boom")))

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries above debug, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "[Login] 登录成功" || entry.ContextMap()["userId"] != "u1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if got := logs.FilterMessage("[Session] 清除会话失败").All(); len(got) != 1 || got[0].ContextMap()["error"] != "boom" {
		t.Fatalf("expected the error field to be recorded, got %+v", got)
	}
}

func TestNamed(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Named("player").Debug("[Player] 绑定曲目", String("trackId", "t1"))

	entries := logs.FilterLoggerName("player").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry from the player logger, got %d", len(entries))
	}
	if entries[0].ContextMap()["trackId"] != "t1" {
		t.Fatalf("unexpected fields %v", entries[0].ContextMap())
	}
}

func TestSetLoggerNil(t *testing.T) {
	SetLogger(zaptest.NewLogger(t))
	Info("routed to the test log")

	SetLogger(nil)
	if L() == nil {
		t.Fatalf("expected a no-op logger after SetLogger(nil)")
	}
	Info("discarded")
}

func TestLevels(t *testing.T) {
	tests := []struct {
		in   LogLevel
		want zapcore.Level
	}{
		{DebugLevel, zapcore.DebugLevel},
		{InfoLevel, zapcore.InfoLevel},
		{WarnLevel, zapcore.WarnLevel},
		{ErrorLevel, zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := tt.in.zapLevel(); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}
