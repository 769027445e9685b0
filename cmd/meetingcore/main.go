package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/meetingcore/meetingcore/internal/capture"
	"github.com/meetingcore/meetingcore/internal/clip"
	"github.com/meetingcore/meetingcore/internal/config"
	"github.com/meetingcore/meetingcore/internal/coordinator"
	"github.com/meetingcore/meetingcore/internal/diarize"
	"github.com/meetingcore/meetingcore/internal/ffmpeg"
	"github.com/meetingcore/meetingcore/internal/format"
	"github.com/meetingcore/meetingcore/internal/interrupt"
	"github.com/meetingcore/meetingcore/internal/pipeline"
	"github.com/meetingcore/meetingcore/internal/recording"
	"github.com/meetingcore/meetingcore/internal/transcribe"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitUsage      = 2
	ExitSetup      = 3
	ExitValidation = 4
	ExitBusy       = 5
	ExitInterrupt  = 130
)

func main() {
	_ = godotenv.Load()

	ih, ctx := interrupt.NewHandler(context.Background())
	defer ih.Stop()

	rootCmd := &cobra.Command{
		Use:           "meetingcore",
		Short:         "Continuous meeting capture, transcription, and diarization",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(transcriptsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}
	if isCobraUsageError(err) {
		return ExitUsage
	}
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, capture.ErrNoAudioDevice) ||
		errors.Is(err, ffmpeg.ErrUnsupportedPlatform) {
		return ExitSetup
	}
	if errors.Is(err, clip.ErrNoClipAvailable) || errors.Is(err, recording.ErrUnknownRecording) {
		return ExitValidation
	}
	if errors.Is(err, clip.ErrAlreadyExtracting) || errors.Is(err, recording.ErrAlreadyRecording) ||
		errors.Is(err, recording.ErrNotRecording) || errors.Is(err, pipeline.ErrTranscriptionBusy) ||
		errors.Is(err, pipeline.ErrDiarizationBusy) {
		return ExitBusy
	}
	return ExitGeneral
}

var cobraUsageErrorPatterns = []string{
	"required flag", "unknown flag", "unknown shorthand",
	"flag needs an argument", "invalid argument",
	"accepts ", "requires at least", "requires at most",
}

func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// buildCoordinator wires every stage together from config and a resolved
// ffmpeg path. Each command that needs the full pipeline calls this once.
func buildCoordinator(ctx context.Context) (*coordinator.Coordinator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	ffmpegPath, err := ffmpeg.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve ffmpeg: %w", err)
	}

	if err := os.MkdirAll(cfg.TempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.MkdirAll(cfg.TranscriptsDir, 0750); err != nil {
		return nil, fmt.Errorf("create transcripts dir: %w", err)
	}

	log := logrus.StandardLogger()

	supervisor, err := capture.NewFFmpegSupervisor(ffmpegPath, cfg.CaptureDevice, cfg.SampleRate, cfg.Channels,
		capture.WithTempDir(cfg.TempDir), capture.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build capture supervisor: %w", err)
	}

	extractor := clip.NewExtractor(ffmpegPath, supervisor, clip.WithTempDir(cfg.TempDir), clip.WithLogger(log))

	recorder, err := recording.NewRecorder(ffmpegPath, cfg.CaptureDevice, cfg.TranscriptsDir,
		recording.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("build recorder: %w", err)
	}

	router := transcribe.NewRouter(ctx, cfg.CloudAPIKey, transcribe.WithLogger(log))
	engine := diarize.NewEngine(diarize.WithLogger(log))
	pipe := pipeline.New(router, engine,
		pipeline.WithTranscriptDir(cfg.TranscriptsDir),
		pipeline.WithLogger(log))

	return coordinator.New(supervisor, extractor, recorder, router, engine, pipe, cfg.TempDir,
		coordinator.WithLogger(log), coordinator.WithOutputDir(cfg.TranscriptsDir)), nil
}

func extractCmd() *cobra.Command {
	var (
		durationSecs float64
		output       string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the most recent N seconds of the rolling capture buffer and transcribe it",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			return co.HandleHotkeyEvent(cmd.Context(), coordinator.HotkeyEvent{
				Kind:          coordinator.ExtractRecentAudio,
				RequestedSecs: durationSecs,
				OutputPath:    output,
			})
		},
	}
	cmd.Flags().Float64VarP(&durationSecs, "duration", "d", 0, "seconds to extract (0 = entire buffer)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the transcribed text to this file")
	return cmd
}

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Control a full-meeting recording",
	}
	cmd.AddCommand(recordStartCmd(), recordStopCmd(), recordStatusCmd())
	return cmd
}

func recordStartCmd() *cobra.Command {
	var (
		title    string
		quality  string
		enhanced bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a full-meeting recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			q, err := recording.ParseQuality(quality)
			if err != nil {
				return err
			}
			session, err := co.StartRecording(cmd.Context(), title, q, enhanced)
			if err != nil {
				return err
			}
			fmt.Println(session.RecordingID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "recording title, stored in the session metadata")
	cmd.Flags().StringVar(&quality, "quality", "high", "quality tier: low, medium, high, ultra, broadcast")
	cmd.Flags().BoolVar(&enhanced, "enhanced", false, "apply the speech-optimized audio filter chain")
	return cmd
}

func recordStopCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active recording and queue post-processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			session, err := co.StopRecording(cmd.Context(), force)
			if err != nil {
				return err
			}
			fmt.Printf("%s stopped (%s)\n", session.RecordingID, format.Duration(secondsToDuration(session.DurationS)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the graceful stop window and kill immediately")
	return cmd
}

// recordStatusCmd reports in-process recorder state. Each CLI invocation
// is its own process, so this only reflects a recording started earlier in
// the same process (e.g. from `serve`); a separate `record start`
// invocation's session isn't visible here without an out-of-scope
// IPC/daemon layer.
func recordStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current recording session, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			ffmpegPath, err := ffmpeg.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			r, err := recording.NewRecorder(ffmpegPath, cfg.CaptureDevice, cfg.TranscriptsDir)
			if err != nil {
				return err
			}
			session := r.Current()
			if session == nil {
				fmt.Println("no active recording")
				return nil
			}
			fmt.Printf("%s: %s (%s)\n", session.RecordingID, session.Status, format.Duration(secondsToDuration(session.DurationS)))
			return nil
		},
	}
}

func transcriptsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "transcripts", Short: "Inspect persisted transcripts"}
	cmd.AddCommand(transcriptsListCmd())
	return cmd
}

func transcriptsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted diarized transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			entries, err := os.ReadDir(cfg.TranscriptsDir)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}

			var names []string
			for _, e := range entries {
				if !e.IsDir() && strings.HasPrefix(e.Name(), "transcript_") && strings.HasSuffix(e.Name(), ".json") {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for _, name := range names {
				printTranscriptSummary(filepath.Join(cfg.TranscriptsDir, name))
			}
			return nil
		},
	}
}

func printTranscriptSummary(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var t pipeline.DiarizedTranscript
	if err := json.Unmarshal(data, &t); err != nil {
		return
	}
	fmt.Printf("%s\t%s\t%s\t%d speakers\n", t.ID, t.CreatedAt.Format(time.RFC3339),
		format.Duration(secondsToDuration(t.TotalDurationS)), len(t.Speakers))
}

// secondsToDuration converts the float-seconds fields stored on sessions and
// transcripts into a time.Duration for formatting.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture supervisor in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			co, err := buildCoordinator(cmd.Context())
			if err != nil {
				return err
			}
			if err := co.EnsureCapturing(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			return cmd.Context().Err()
		},
	}
}

// configKeys lists every supported configuration key, mirroring the
// Key* constants internal/config exposes.
var configKeys = []string{
	config.KeyOutputDir,
	config.KeyCaptureDevice,
	config.KeySampleRate,
	config.KeyChannels,
	config.KeyRollingBufferSecs,
	config.KeyClipDurationSecs,
	config.KeyMaxRecordingSecs,
	config.KeyTranscriptsDir,
	config.KeyTempDir,
	config.KeyCloudAPIKey,
}

func isValidConfigKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}
	return false
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persistent configuration settings",
		Long: `Manage configuration stored in the go-transcript config directory.

Every key can also be set via the environment variable fallback internal/config
documents; a value written here takes precedence over that fallback.`,
	}
	cmd.AddCommand(configSetCmd(), configGetCmd(), configListCmd())
	return cmd
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if !isValidConfigKey(key) {
				return fmt.Errorf("unknown config key %q (valid keys: %v)", key, configKeys)
			}
			if key == config.KeyTranscriptsDir || key == config.KeyTempDir {
				expanded := config.ExpandPath(value)
				if err := config.EnsureOutputDir(expanded); err != nil {
					return fmt.Errorf("invalid %s: %w", key, err)
				}
				value = expanded
			}
			if err := config.Save(key, value); err != nil {
				return err
			}
			fmt.Printf("Set %s = %s\n", key, value)
			return nil
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidConfigKey(args[0]) {
				return fmt.Errorf("unknown config key %q (valid keys: %v)", args[0], configKeys)
			}
			value, err := config.Get(args[0])
			if err != nil {
				return err
			}
			if value != "" {
				fmt.Println(value)
			}
			return nil
		},
	}
}

func configListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every configuration value set in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.List()
			if err != nil {
				return err
			}
			if len(data) == 0 {
				fmt.Println("No configuration set.")
				return nil
			}
			keys := make([]string, 0, len(data))
			for k := range data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, data[k])
			}
			return nil
		},
	}
}
