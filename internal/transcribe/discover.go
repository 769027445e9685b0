package transcribe

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
)

// nativeCPPBinaries are the names whisper.cpp's CLI has shipped under
// across versions. Only "whisper" collides with the Python package's
// console-script name and needs the --help/site-packages disambiguation;
// the rest are unambiguously the C++ build.
var nativeCPPBinaries = []string{"whisper-cli", "whisper-cpp", "main", "whisper"}

const ambiguousBinaryName = "whisper"

// fasterWhisperBinaries are faster-whisper's common entrypoint names.
var fasterWhisperBinaries = []string{"faster-whisper", "faster-whisper-xxl"}

// nativeHelpMarkers are flags that only whisper.cpp's C++ CLI exposes;
// their presence in --help output distinguishes it from the
// identically-named Python reference implementation.
var nativeHelpMarkers = []string{"-nt", "-otxt", "--no-timestamps"}

// numericLibraryErrorMarkers classify a probe failure as a numeric-library
// ABI mismatch (commonly numpy/ctranslate2 version skew) rather than a
// generic failure, gating the reference Python engine out of the ladder.
var numericLibraryErrorMarkers = []string{
	"numpy.dtype size changed",
	"Illegal instruction",
	"incompatible with this version of numpy",
	"undefined symbol",
}

// engines is the set of binaries and models discovered available on the
// host at Router construction time.
type engines struct {
	nativeCPPPath       string
	packagedPath        string
	fasterWhisperPath   string
	pythonReferencePath string
	pythonReferenceOK   bool
	modelPath           string
}

// modelCandidates returns, in order, the filenames searched for at each of
// ModelSearchPaths.
var modelCandidates = []string{"ggml-base.en.bin", "ggml-base.bin"}

// ModelSearchPaths returns the fixed ordered list of directories searched
// for a whisper.cpp ggml model file.
func ModelSearchPaths() []string {
	home, _ := os.UserHomeDir()
	paths := []string{
		"/opt/homebrew/share/whisper-cpp/models",
		"/usr/local/share/whisper-cpp/models",
		"./models",
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".whisper.cpp", "models"))
	}
	return paths
}

func findModel(fs fileSystem) string {
	for _, dir := range ModelSearchPaths() {
		for _, name := range modelCandidates {
			candidate := filepath.Join(dir, name)
			if _, err := fs.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// discoverEngines probes the host for each rung of the ladder. Every probe
// is best-effort: a missing or misbehaving engine simply leaves its field
// empty rather than failing discovery as a whole.
func discoverEngines(ctx context.Context, cmd commandRunner, fs fileSystem) engines {
	var e engines
	e.modelPath = findModel(fs)

	for _, name := range nativeCPPBinaries {
		path, err := cmd.LookPath(name)
		if err != nil {
			continue
		}
		if name == ambiguousBinaryName {
			native := isNativeCPPBuild(ctx, cmd, path) && !isSitePackagesPath(path)
			if !native {
				if e.pythonReferencePath == "" {
					e.pythonReferencePath = path
				}
				continue
			}
		}
		switch {
		case e.nativeCPPPath == "":
			e.nativeCPPPath = path
		case e.packagedPath == "" && path != e.nativeCPPPath:
			e.packagedPath = path
		}
	}

	for _, name := range fasterWhisperBinaries {
		if path, err := cmd.LookPath(name); err == nil {
			e.fasterWhisperPath = path
			break
		}
	}

	if e.pythonReferencePath != "" {
		e.pythonReferenceOK = probePythonReference(ctx, cmd, e.pythonReferencePath)
	}

	return e
}

// isNativeCPPBuild runs `path --help` and checks for flags unique to
// whisper.cpp's C++ CLI, distinguishing it from an identically-named
// Python build.
func isNativeCPPBuild(ctx context.Context, cmd commandRunner, path string) bool {
	output, _ := cmd.CombinedOutput(ctx, path, []string{"--help"})
	text := string(output)
	for _, marker := range nativeHelpMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func isSitePackagesPath(path string) bool {
	return strings.Contains(path, "site-packages") || strings.Contains(path, "dist-packages")
}

// probePythonReference runs a no-op invocation of the reference
// transcriber and classifies its stderr for numeric-library
// incompatibility before trusting it as a ladder rung.
func probePythonReference(ctx context.Context, cmd commandRunner, path string) bool {
	output, err := cmd.CombinedOutput(ctx, path, []string{"--help"})
	if err == nil {
		return true
	}
	text := string(output)
	for _, marker := range numericLibraryErrorMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return true
}

// stripWhisperCppNoise removes whisper.cpp's stdout banner/log lines
// (ggml_*, whisper_*, timing rows) when the sidecar .txt file is absent
// and stdout must be parsed directly.
func stripWhisperCppNoise(output []byte) string {
	lines := bytes.Split(output, []byte("\n"))
	var kept [][]byte
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if bytes.HasPrefix(trimmed, []byte("whisper_")) || bytes.HasPrefix(trimmed, []byte("ggml_")) {
			continue
		}
		if bytes.Contains(trimmed, []byte("load time")) || bytes.Contains(trimmed, []byte("total time")) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.TrimSpace(string(bytes.Join(kept, []byte("\n"))))
}
