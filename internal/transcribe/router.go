package transcribe

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/meetingcore/meetingcore/internal/apierr"
)

// Router selects among local transcription engines and a cloud API in a
// fixed preference order, returning the first non-empty transcript.
type Router struct {
	cmd   commandRunner
	fs    fileSystem
	cloud cloudClient
	log   *logrus.Logger
	retry apierr.RetryConfig

	engines engines
}

// Option configures a Router.
type Option func(*Router)

func WithCommandRunner(c commandRunner) Option { return func(r *Router) { r.cmd = c } }
func WithFileSystem(f fileSystem) Option       { return func(r *Router) { r.fs = f } }
func WithCloudClient(c cloudClient) Option     { return func(r *Router) { r.cloud = c } }
func WithLogger(l *logrus.Logger) Option       { return func(r *Router) { r.log = l } }
func WithRetryConfig(c apierr.RetryConfig) Option {
	return func(r *Router) { r.retry = c }
}

// NewRouter discovers available local engines and prepares the cloud
// fallback. apiKey may be empty, in which case the cloud rung of the
// ladder is always skipped.
func NewRouter(ctx context.Context, apiKey string, opts ...Option) *Router {
	r := &Router{
		cmd: osCommandRunner{},
		fs:  osFileSystem{},
		log: logrus.StandardLogger(),
		retry: apierr.RetryConfig{
			MaxRetries: defaultMaxRetries,
			BaseDelay:  defaultBaseDelay,
			MaxDelay:   defaultMaxDelay,
		},
	}
	if apiKey != "" {
		r.cloud = newOpenAIClient(apiKey, "", nil)
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engines = discoverEngines(ctx, r.cmd, r.fs)
	return r
}

// Transcribe runs the engine ladder in preference order and returns the
// first non-empty result along with which backend produced it.
func (r *Router) Transcribe(ctx context.Context, audioPath string) (string, Backend, error) {
	for _, backend := range ladder {
		text, err := r.tryBackend(ctx, backend, audioPath)
		if err != nil {
			r.log.WithFields(logrus.Fields{"backend": backend.String()}).
				WithError(err).Debug("engine unavailable or empty, trying next")
			continue
		}
		return text, backend, nil
	}
	return "", 0, ErrNoEngineAvailable
}

func (r *Router) tryBackend(ctx context.Context, backend Backend, audioPath string) (string, error) {
	switch backend {
	case BackendNativeCPP:
		if r.engines.nativeCPPPath == "" {
			return "", ErrNoEngineAvailable
		}
		return runNativeCPP(ctx, r.cmd, r.fs, r.engines.nativeCPPPath, r.engines.modelPath, audioPath)
	case BackendPackaged:
		if r.engines.packagedPath == "" {
			return "", ErrNoEngineAvailable
		}
		return runPackaged(ctx, r.cmd, r.fs, r.engines.packagedPath, audioPath)
	case BackendFasterWhisper:
		if r.engines.fasterWhisperPath == "" {
			return "", ErrNoEngineAvailable
		}
		return runFasterWhisper(ctx, r.cmd, r.fs, r.engines.fasterWhisperPath, audioPath)
	case BackendPythonReference:
		if r.engines.pythonReferencePath == "" || !r.engines.pythonReferenceOK {
			return "", ErrNoEngineAvailable
		}
		return runPythonReference(ctx, r.cmd, r.fs, r.engines.pythonReferencePath, audioPath)
	case BackendCloud:
		if r.cloud == nil {
			return "", ErrAPIKeyMissing
		}
		return runCloud(ctx, r.cloud, audioPath, r.retry)
	default:
		return "", ErrNoEngineAvailable
	}
}
