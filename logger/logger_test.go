package logger

import (
	"strings"
	"testing"
)

func TestNewAssignsDistinctCorrelationIDs(t *testing.T) {
	a := New(nil)
	b := New(nil)
	if a.CorrelationID() == "" {
		t.Fatal("CorrelationID() is empty")
	}
	if a.CorrelationID() == b.CorrelationID() {
		t.Error("two Loggers got the same correlation id")
	}
}

func TestLogLinesCarryCorrelationID(t *testing.T) {
	var messages []string
	log := New(func(level, message string) { messages = append(messages, message) })

	log.Info("hello %s", "world")
	log.Warning("careful")
	log.Error("boom")

	if len(messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(messages))
	}
	for _, msg := range messages {
		if !strings.Contains(msg, log.CorrelationID()) {
			t.Errorf("message %q does not carry correlation id %q", msg, log.CorrelationID())
		}
	}
	if !strings.Contains(messages[0], "hello world") {
		t.Errorf("message = %q, want to contain %q", messages[0], "hello world")
	}
}
