package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/scanpipe/internal/config"
)

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"out/AllIssues.csv", "text/csv"},
		{"report.JSON", "application/json"},
		{"result.sarif", "application/json"},
		{"index.html", "text/html"},
		{"app_scan.log", "text/plain"},
		{"app.ear", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			if got := ContentType(tt.path); got != tt.want {
				t.Errorf("ContentType(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestObjectURL(t *testing.T) {
	t.Parallel()

	got := ObjectURL("https", "minio.local:9000", "reports", "/SPK1/id/app.ear/AllIssues.csv")
	want := "https://minio.local:9000/reports/SPK1/id/app.ear/AllIssues.csv"
	if got != want {
		t.Errorf("ObjectURL() = %q, want %q", got, want)
	}

	if got := ObjectURL("", "h", "b", "k"); got != "http://h/b/k" {
		t.Errorf("ObjectURL() without scheme = %q", got)
	}
}

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), config.StorageConfig{})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("New() error = %v, want ErrDisabled", err)
	}
}
