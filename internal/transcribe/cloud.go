package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/meetingcore/meetingcore/internal/apierr"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 15 * time.Second
)

// cloudClient is the subset of *openai.Client the cloud backend needs,
// matched structurally so a fake can stand in for tests without a real
// network round trip.
type cloudClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// newOpenAIClient builds the real go-openai client, optionally pointed at
// a non-default base URL or HTTP client (used by tests against an
// httptest.Server).
func newOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// runCloud uploads audioPath to the cloud transcription API per the
// fixed contract: model=whisper-1, language=en, response_format=text.
// Transient failures (rate limits, 5xx, timeouts) are retried with
// exponential backoff; auth and quota failures are not.
func runCloud(ctx context.Context, client cloudClient, audioPath string, retry apierr.RetryConfig) (string, error) {
	return apierr.RetryWithBackoff(ctx, retry, func() (string, error) {
		resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    openai.Whisper1,
			FilePath: audioPath,
			Language: "en",
			Format:   openai.AudioResponseFormatText,
		})
		if err != nil {
			return "", classifyCloudError(err)
		}
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return "", ErrEmptyTranscript
		}
		return text, nil
	}, isRetryableError)
}

// classifyCloudError maps go-openai's APIError into the shared apierr
// sentinel taxonomy so the retry loop and callers can use errors.Is
// regardless of which backend produced the failure.
func classifyCloudError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			if strings.Contains(apiErr.Message, "quota") || strings.Contains(apiErr.Message, "billing") {
				return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrRateLimit)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrBadRequest)
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}

func isRetryableError(err error) bool {
	if errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrTimeout) {
		return true
	}
	return false
}
