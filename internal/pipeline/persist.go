package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// persist writes transcript to <dir>/transcript_<id>.json atomically: encode
// to a temp file in the same directory, then rename into place, so a
// reader never observes a partially-written transcript.
func persist(dir string, transcript *DiarizedTranscript) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create transcripts dir: %w", err)
	}

	destPath := filepath.Join(dir, fmt.Sprintf("transcript_%s.json", transcript.ID))

	tempFile, err := os.CreateTemp(dir, ".transcript-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tempFile.Close()
		}
		_ = os.Remove(tempPath)
	}()

	enc := json.NewEncoder(tempFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(transcript); err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	closed = true

	if err := os.Rename(tempPath, destPath); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return destPath, nil
}
