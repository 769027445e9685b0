package transcribe

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// runNativeCPP invokes whisper.cpp's C++ CLI per its exact call contract:
// "-m <model-file> -f <audio> -nt -l en -otxt". It writes a sidecar .txt
// file; read and delete it, falling back to parsing stdout (filtering
// whisper.cpp's log banner) if the sidecar never appears.
func runNativeCPP(ctx context.Context, cmd commandRunner, fs fileSystem, binPath, modelPath, audioPath string) (string, error) {
	if modelPath == "" {
		return "", fmt.Errorf("%w: searched %v", ErrModelNotFound, ModelSearchPaths())
	}
	args := []string{"-m", modelPath, "-f", audioPath, "-nt", "-l", "en", "-otxt"}
	output, runErr := cmd.CombinedOutput(ctx, binPath, args)

	sidecar := audioPath + ".txt"
	if data, err := fs.ReadFile(sidecar); err == nil {
		_ = fs.Remove(sidecar)
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", ErrEmptyTranscript
		}
		return text, nil
	}

	if runErr != nil {
		return "", fmt.Errorf("native whisper.cpp invocation failed: %w", runErr)
	}
	text := stripWhisperCppNoise(output)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// runPackagedStyle covers the packaged native build, faster-whisper, and
// the reference Python transcriber: all three share the argparse-derived
// contract "--model base --language en --output_format txt --output_dir
// <dir>", writing "<stem>.txt" into that directory.
func runPackagedStyle(ctx context.Context, cmd commandRunner, fs fileSystem, binPath, audioPath string) (string, error) {
	dir := filepath.Dir(audioPath)
	args := []string{"--model", "base", "--language", "en", "--output_format", "txt", "--output_dir", dir}
	_, runErr := cmd.CombinedOutput(ctx, binPath, args)

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	outPath := filepath.Join(dir, stem+".txt")

	data, err := fs.ReadFile(outPath)
	if err != nil {
		if runErr != nil {
			return "", fmt.Errorf("transcription invocation failed: %w", runErr)
		}
		return "", fmt.Errorf("expected output file not found: %w", err)
	}
	_ = fs.Remove(outPath)

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func runPackaged(ctx context.Context, cmd commandRunner, fs fileSystem, binPath, audioPath string) (string, error) {
	return runPackagedStyle(ctx, cmd, fs, binPath, audioPath)
}

func runFasterWhisper(ctx context.Context, cmd commandRunner, fs fileSystem, binPath, audioPath string) (string, error) {
	return runPackagedStyle(ctx, cmd, fs, binPath, audioPath)
}

func runPythonReference(ctx context.Context, cmd commandRunner, fs fileSystem, binPath, audioPath string) (string, error) {
	return runPackagedStyle(ctx, cmd, fs, binPath, audioPath)
}
