package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 4 << 20

// PostJSON sends body to endpoint and returns the raw response body. Non-2xx
// responses become *HTTPError carrying the status text and body.
func PostJSON(ctx context.Context, client *http.Client, providerName, endpoint string, headers map[string]string, body []byte) ([]byte, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// statusText mirrors the reason phrase, without the numeric prefix net/http adds.
func statusText(resp *http.Response) string {
	if s := strings.TrimSpace(resp.Status); s != "" {
		if i := strings.IndexByte(s, ' '); i > 0 {
			return s[i+1:]
		}
		return s
	}
	return http.StatusText(resp.StatusCode)
}
