package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	output := buf.String()
	if output == "" {
		t.Error("Expected log output, got empty string")
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestNewWithConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zerolog.Level
		wantJSON  bool
	}{
		{"json debug", "debug", "json", zerolog.DebugLevel, true},
		{"console warn", "WARN", "console", zerolog.WarnLevel, false},
		{"unknown level falls back to info", "loud", "json", zerolog.InfoLevel, true},
		{"empty level is info", "", "", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := NewWithConfig(buf, tt.level, tt.format)

			if log.GetLevel() != tt.wantLevel {
				t.Errorf("Expected level %s, got %s", tt.wantLevel, log.GetLevel())
			}

			log.WithLevel(tt.wantLevel).Msg("hello")
			output := buf.String()
			if !strings.Contains(output, "hello") {
				t.Fatalf("Expected output to contain 'hello', got: %s", output)
			}
			if isJSON := strings.HasPrefix(output, "{"); isJSON != tt.wantJSON {
				t.Errorf("Expected JSON=%v, got output: %s", tt.wantJSON, output)
			}
		})
	}
}

func TestNewWithConfig_FiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithConfig(buf, "error", "json")

	log.Info().Msg("dropped")

	if buf.Len() != 0 {
		t.Errorf("Expected no output below level, got: %s", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	log := New()
	ctx := context.Background()

	ctxWithLogger := WithContext(ctx, log)

	if ctxWithLogger.Value(LoggerKey) == nil {
		t.Error("Expected logger in context, got nil")
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	testLog := NewWithWriter(buf)
	ctx := WithContext(context.Background(), testLog)

	retrievedLog := FromContext(ctx)
	retrievedLog.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	ctx := context.Background()

	// Should return a default logger when none is in context
	log := FromContext(ctx)

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	fields := map[string]interface{}{
		"user_id": "123",
		"action":  "test",
	}

	logWithFields := WithFields(log, fields)
	logWithFields.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"user_id":"123"`) {
		t.Errorf("Expected output to contain user_id field, got: %s", output)
	}
	if !strings.Contains(output, `"action":"test"`) {
		t.Errorf("Expected output to contain action field, got: %s", output)
	}
}

func TestWithMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithMessage(NewWithWriter(buf), "user-1", "msg-9")

	log.Info().Msg("processing")

	output := buf.String()
	if !strings.Contains(output, `"user_id":"user-1"`) || !strings.Contains(output, `"message_id":"msg-9"`) {
		t.Errorf("Expected message fields, got: %s", output)
	}
}
