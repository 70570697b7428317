package logsafe

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner)), &buf
}

func TestRedactsSensitiveMessage(t *testing.T) {
	tests := []struct {
		name    string
		message string
		redact  bool
	}{
		{"password assignment", "got password=hunter2 from client", true},
		{"token assignment", "token=eyJhbGciOi sent upstream", true},
		{"quoted password", `payload was {"password": "x"}`, true},
		{"secret assignment", "secret=abc", true},
		{"auth assignment", "auth=basic xyz", true},
		{"uppercase marker", "PASSWORD=topsecret", true},
		{"plain prose", "password input required from user", false},
		{"pairing flow", "pairing created for agent", false},
		{"keyboard", "monkey on the keyboard", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newLogger()
			logger.Info(tt.message)
			out := buf.String()

			if tt.redact {
				if !strings.Contains(out, redactedMessage) {
					t.Fatalf("message not redacted: %s", out)
				}
				if strings.Contains(out, "hunter2") || strings.Contains(out, "topsecret") {
					t.Fatalf("secret leaked: %s", out)
				}
			} else {
				if strings.Contains(out, redactedMessage) {
					t.Fatalf("benign message redacted: %s", out)
				}
			}
		})
	}
}

func TestRedactsSensitiveAttr(t *testing.T) {
	logger, buf := newLogger()

	logger.Info("request received", "body", `{"password": "hunter2"}`, "path", "/credential/request")
	out := buf.String()

	if strings.Contains(out, "hunter2") {
		t.Fatalf("attr value leaked: %s", out)
	}
	if !strings.Contains(out, "path=/credential/request") {
		t.Fatalf("benign attr lost: %s", out)
	}
}

func TestWithAttrsRedacted(t *testing.T) {
	logger, buf := newLogger()

	child := logger.With("context", "token=abcdef")
	child.Info("derived logger event")

	if strings.Contains(buf.String(), "abcdef") {
		t.Fatalf("With attr leaked: %s", buf.String())
	}
}

func TestWithGroupKeepsRedaction(t *testing.T) {
	logger, buf := newLogger()

	grouped := logger.WithGroup("http")
	grouped.Info("saw password=oops in request")

	if strings.Contains(buf.String(), "oops") {
		t.Fatalf("grouped record leaked: %s", buf.String())
	}
}

func TestNonStringAttrsPassThrough(t *testing.T) {
	logger, buf := newLogger()

	logger.Info("session count", "active", 3)
	if !strings.Contains(buf.String(), "active=3") {
		t.Fatalf("int attr mangled: %s", buf.String())
	}
}
