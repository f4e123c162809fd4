package s3blob

import (
	"strings"
	"testing"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://minio.local:9000", false, "https://minio.local:9000"},
		{"minio.local:9000", false, "http://minio.local:9000"},
		{"r2.example.com", true, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestWriterObjectKey(t *testing.T) {
	w := &Writer{prefix: "exports/"}
	if got := w.objectKey("history/2026-10-16/120000.jsonl"); got != "exports/history/2026-10-16/120000.jsonl" {
		t.Errorf("objectKey = %q", got)
	}
	w = &Writer{}
	if got := w.objectKey("a.jsonl"); got != "a.jsonl" {
		t.Errorf("objectKey = %q", got)
	}
}

func TestEncodeJSONL(t *testing.T) {
	type rec struct {
		ID   string `json:"id"`
		Note string `json:"note"`
	}
	data, err := EncodeJSONL([]rec{{"a", "<b>"}, {"c", ""}})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != `{"id":"a","note":"<b>"}` {
		t.Errorf("line 0 = %s", lines[0])
	}
}
