// Package transcript resolves a generation request's transcript source:
// inline text, or a fetchable URL from the transcription backend.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMissing is returned when neither inline text nor a URL is supplied,
// or the resolved transcript is empty. It is a terminal input error.
var ErrMissing = errors.New("transcript or transcriptUrl is required")

// maxFetchBytes caps a fetched transcript body. Anything larger is
// truncated downstream by the sanitizer anyway.
const maxFetchBytes = 10 << 20

// Resolver fetches transcript text by URL when it isn't supplied inline.
type Resolver struct {
	client *http.Client
}

func NewResolver() *Resolver {
	return &Resolver{client: &http.Client{Timeout: 30 * time.Second}}
}

// SetTestTransport swaps the underlying HTTP client, for tests.
func (r *Resolver) SetTestTransport(client *http.Client) {
	r.client = client
}

// Resolve returns the transcript text: inline text wins; otherwise the
// URL is fetched. A fetch failure or an empty result is terminal for the
// whole request.
func (r *Resolver) Resolve(ctx context.Context, text, url string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if url == "" {
		return "", ErrMissing
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create transcript request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch transcript: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return "", ErrMissing
	}
	return string(body), nil
}
