package transcribe

import (
	"context"
	"os"
	"os/exec"
)

// commandRunner executes external commands, returning combined
// stdout+stderr regardless of exit code. Grounded on the same seam used
// throughout the corpus for subprocess engines (whisper.cpp, whisper,
// faster-whisper are all invoked this way).
type commandRunner interface {
	CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error)
	LookPath(name string) (string, error)
}

type osCommandRunner struct{}

func (osCommandRunner) CombinedOutput(ctx context.Context, name string, args []string) ([]byte, error) {
	// #nosec G204 -- name/args come from the engine ladder's fixed call contracts
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func (osCommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// fileSystem abstracts the file reads/deletes each engine runner performs
// on its sidecar output file.
type fileSystem interface {
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

type osFileSystem struct{}

func (osFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (osFileSystem) Remove(name string) error              { return os.Remove(name) }
func (osFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
