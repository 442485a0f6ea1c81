// ABOUTME: HTTP session backend shared by the engine loaders
// ABOUTME: One GET per thread; loaders interpret the body, this only moves bytes

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPBackend fetches resume responses from an engine's local session
// server. It owns transport only; response shape belongs to the loader.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend creates a backend rooted at baseURL. An empty token sends
// no Authorization header.
func NewHTTPBackend(baseURL, token string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchThread GETs /threads/{threadID}?workspace={workspaceID} and returns
// the raw body.
func (b *HTTPBackend) FetchThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/threads/%s?workspace=%s",
		b.baseURL, url.PathEscape(threadID), url.QueryEscape(workspaceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching thread: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("session backend returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
