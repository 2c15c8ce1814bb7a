package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestContextHandler(t *testing.T) {
	t.Parallel()

	t.Run("adds request id from context", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewSecureLogger(&buf, false)
		ctx := WithRequestID(context.Background(), "3f1c2a9e")

		logger.InfoContext(ctx, "stage started", "stage", "SEARCH ARTIFACT")

		if !strings.Contains(buf.String(), "request_id=3f1c2a9e") {
			t.Errorf("expected request_id attribute, got: %s", buf.String())
		}
	})

	t.Run("no request id without context value", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewSecureLogger(&buf, false)
		logger.InfoContext(context.Background(), "server started")

		if strings.Contains(buf.String(), RequestIDKey) {
			t.Errorf("expected no request_id attribute, got: %s", buf.String())
		}
	})

	t.Run("RequestIDFrom ignores empty ids", func(t *testing.T) {
		t.Parallel()

		if _, ok := RequestIDFrom(WithRequestID(context.Background(), "")); ok {
			t.Error("expected empty id to be reported as absent")
		}
		id, ok := RequestIDFrom(WithRequestID(context.Background(), "abc"))
		if !ok || id != "abc" {
			t.Errorf("unexpected result %q, %v", id, ok)
		}
	})
}
