package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPersist_WritesAtomicallyAndIsReadable(t *testing.T) {
	dir := t.TempDir()
	transcript := &DiarizedTranscript{
		ID:             "abc123",
		CreatedAt:      time.Now(),
		TotalDurationS: 12.5,
		FullText:       "hello world",
	}

	path, err := persist(dir, transcript)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if !strings.HasSuffix(path, "transcript_abc123.json") {
		t.Fatalf("unexpected dest path: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	var got DiarizedTranscript
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.FullText != "hello world" {
		t.Fatalf("expected full text round-tripped, got %q", got.FullText)
	}

	// No leftover temp files.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".transcript-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

func TestPersist_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "transcripts")
	transcript := &DiarizedTranscript{ID: "xyz"}

	if _, err := persist(dir, transcript); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected dir to be created: %v", err)
	}
}
