package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		build   func(bool) (interface{ Sync() error }, func(zapcore.Level) bool, error)
		debug   bool
		infoOn  bool
		debugOn bool
	}{
		{"server debug", server, true, true, true},
		{"server production", server, false, true, false},
		{"command debug", command, true, true, true},
		{"command quiet", command, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, enabled, err := tt.build(tt.debug)
			if err != nil {
				t.Fatalf("build error: %v", err)
			}
			if got := enabled(zapcore.InfoLevel); got != tt.infoOn {
				t.Errorf("info enabled = %v, want %v", got, tt.infoOn)
			}
			if got := enabled(zapcore.DebugLevel); got != tt.debugOn {
				t.Errorf("debug enabled = %v, want %v", got, tt.debugOn)
			}
			if !enabled(zapcore.WarnLevel) {
				t.Error("warn must always be enabled")
			}
			_ = logger.Sync()
		})
	}
}

func server(debug bool) (interface{ Sync() error }, func(zapcore.Level) bool, error) {
	l, err := NewLogger(debug)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Core().Enabled, nil
}

func command(debug bool) (interface{ Sync() error }, func(zapcore.Level) bool, error) {
	l, err := NewCommandLogger(debug)
	if err != nil {
		return nil, nil, err
	}
	return l, l.Core().Enabled, nil
}
